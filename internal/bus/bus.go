// Package bus implements the synchronous in-process publish/subscribe hub
// that decouples input drivers from the session engine and the DNS output
// driver (§4.4). Handlers run synchronously on the publisher's goroutine.
// Apart from the start event, which Core.Run publishes before the reactor
// loop begins, Publish is called only from the reactor goroutine, so no
// handler ever runs concurrently with another.
package bus

import "github.com/rs/zerolog/log"

// Event names. Payload shapes are documented per-constant.
const (
	// EventStart carries no payload; it kicks off the session.
	EventStart = "start"
	// EventHeartbeat carries no payload; the reactor tick pulse.
	EventHeartbeat = "heartbeat"
	// EventShutdown carries no payload; final teardown.
	EventShutdown = "shutdown"
	// EventSessionCreated carries SessionCreated.
	EventSessionCreated = "session_created"
	// EventSessionClosed carries SessionClosed.
	EventSessionClosed = "session_closed"
	// EventDataOut carries Data; input driver -> session engine.
	EventDataOut = "data_out"
	// EventDataIn carries Data; session engine -> input driver.
	EventDataIn = "data_in"
	// EventConfigString carries ConfigString.
	EventConfigString = "config_string"
	// EventConfigInt carries ConfigInt.
	EventConfigInt = "config_int"
)

// SessionCreated is the payload of EventSessionCreated.
type SessionCreated struct {
	SessionID uint16
}

// SessionClosed is the payload of EventSessionClosed.
type SessionClosed struct {
	SessionID uint16
	Reason    string
}

// Data is the payload of EventDataOut and EventDataIn.
type Data struct {
	SessionID uint16
	Bytes     []byte
	// EOF marks the end of the stream (posted once, on FIN).
	EOF bool
}

// ConfigString is the payload of EventConfigString.
type ConfigString struct {
	Key   string
	Value string
}

// ConfigInt is the payload of EventConfigInt.
type ConfigInt struct {
	Key   string
	Value int
}

// Handler receives an event's payload. Handlers must not block: they run
// synchronously on the reactor thread and a blocking handler stalls every
// other source the reactor services.
type Handler func(payload any)

// Bus is a synchronous publish/subscribe hub keyed by event name. Nested
// publishes (a handler publishing another event from within its callback)
// are permitted and simply recurse: the inner Publish call runs every one
// of its handlers to completion before control returns to the handler that
// triggered it, per §4.4.
type Bus struct {
	subscribers map[string][]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers h to run whenever event is published. Subscriptions
// are invoked in registration order.
func (b *Bus) Subscribe(event string, h Handler) {
	b.subscribers[event] = append(b.subscribers[event], h)
}

// Publish synchronously invokes every handler subscribed to event, in
// registration order, passing payload to each.
func (b *Bus) Publish(event string, payload any) {
	handlers := b.subscribers[event]
	if len(handlers) == 0 {
		log.Debug().Str("event", event).Msg("bus: no subscribers")
		return
	}
	for _, h := range handlers {
		h(payload)
	}
}
