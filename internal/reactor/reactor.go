// Package reactor implements the single-threaded cooperative event loop
// described in §4.2/§5: one goroutine dispatches due timers and ready I/O
// callbacks, so no two callbacks ever run concurrently and session state
// never needs a lock. It is the Go analog of dnscat2's select_group: where
// that C reactor multiplexes file descriptors with select(2), this one
// multiplexes goroutine-fed channels with Go's select statement, preserving
// the same contract (callbacks run to completion, never block).
package reactor

import (
	"container/heap"
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTick bounds how long Run's select blocks when no timer is due,
// so periodic bookkeeping (e.g. checking ctx.Done()) still happens even if
// a source never posts anything.
const DefaultTick = 1 * time.Second

// Reactor is the single dispatch loop. All registered callbacks and every
// posted event function run on the goroutine that calls Run.
type Reactor struct {
	events chan func()
	timers *timerHeap
}

// New returns a Reactor with room for a modest burst of pending events
// before Post blocks its caller.
func New() *Reactor {
	return &Reactor{
		events: make(chan func(), 256),
		timers: newTimerHeap(),
	}
}

// Post enqueues fn to run on the reactor goroutine. Sources (UDP reader
// goroutines, stdin readers, child process pipes) call this instead of
// mutating shared state directly, which is what keeps the session engine
// single-threaded despite being fed by multiple OS-level sources.
func (r *Reactor) Post(fn func()) {
	r.events <- fn
}

// AfterFunc schedules fn to run once, after d elapses, on the reactor
// goroutine.
func (r *Reactor) AfterFunc(d time.Duration, fn func()) TimerHandle {
	t := &timer{deadline: time.Now().Add(d), callback: fn}
	heap.Push(r.timers, t)
	return TimerHandle{t: t}
}

// TickerFunc schedules fn to run every d, starting after the first d
// elapses, on the reactor goroutine, until cancelled.
func (r *Reactor) TickerFunc(d time.Duration, fn func()) TimerHandle {
	t := &timer{deadline: time.Now().Add(d), period: d, callback: fn}
	heap.Push(r.timers, t)
	return TimerHandle{t: t}
}

// Run blocks until ctx is cancelled, dispatching due timers and posted
// events as they arrive. It is the reactor's only suspension point per §5:
// everything else in the program runs to completion between iterations of
// this loop.
func (r *Reactor) Run(ctx context.Context) {
	for {
		wait := DefaultTick
		if deadline, ok := r.timers.peekDeadline(); ok {
			if until := time.Until(deadline); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}

		waitTimer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			waitTimer.Stop()
			return
		case fn := <-r.events:
			waitTimer.Stop()
			fn()
		case <-waitTimer.C:
			r.dispatchDue()
		}
	}
}

func (r *Reactor) dispatchDue() {
	now := time.Now()
	due := r.timers.popDue(now)
	for _, t := range due {
		if t.cancelled {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error().Interface("panic", rec).Msg("reactor: timer callback panicked")
				}
			}()
			t.callback()
		}()
		if t.period > 0 && !t.cancelled {
			t.deadline = t.deadline.Add(t.period)
			heap.Push(r.timers, t)
		}
	}
}
