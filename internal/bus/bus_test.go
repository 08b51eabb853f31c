package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishInvokesAllSubscribersInOrder(t *testing.T) {
	b := New()
	var order []int

	b.Subscribe(EventStart, func(payload any) { order = append(order, 1) })
	b.Subscribe(EventStart, func(payload any) { order = append(order, 2) })

	b.Publish(EventStart, nil)

	assert.Equal(t, []int{1, 2}, order)
}

func TestPublishPassesPayload(t *testing.T) {
	b := New()
	var got Data

	b.Subscribe(EventDataOut, func(payload any) { got = payload.(Data) })
	b.Publish(EventDataOut, Data{SessionID: 7, Bytes: []byte("hi")})

	assert.Equal(t, uint16(7), got.SessionID)
	assert.Equal(t, []byte("hi"), got.Bytes)
}

func TestNestedPublishRunsToCompletion(t *testing.T) {
	b := New()
	var order []string

	b.Subscribe(EventDataOut, func(payload any) {
		order = append(order, "outer-start")
		b.Publish(EventDataIn, Data{})
		order = append(order, "outer-end")
	})
	b.Subscribe(EventDataIn, func(payload any) {
		order = append(order, "inner")
	})

	b.Publish(EventDataOut, Data{})

	assert.Equal(t, []string{"outer-start", "inner", "outer-end"}, order)
}

func TestPublishNoSubscribersIsNoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { b.Publish(EventShutdown, nil) })
}
