package reactor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostRunsOnReactorGoroutine(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go r.Run(ctx)

	r.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("posted function never ran")
	}
}

func TestAfterFuncFires(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go r.Run(ctx)

	fired := make(chan struct{})
	r.AfterFunc(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("AfterFunc never fired")
	}
}

func TestAfterFuncCancel(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	var fired atomic.Bool
	h := r.AfterFunc(50*time.Millisecond, func() { fired.Store(true) })
	h.Cancel()

	time.Sleep(150 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestTickerFuncRepeats(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go r.Run(ctx)

	var count atomic.Int32
	h := r.TickerFunc(20*time.Millisecond, func() { count.Add(1) })

	time.Sleep(150 * time.Millisecond)
	h.Cancel()
	seen := count.Load()
	assert.GreaterOrEqual(t, seen, int32(3))
}
