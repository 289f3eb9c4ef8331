package client

import (
	"sync"
	"time"
)

// Event is a one-shot signal shared between goroutines.
//
// Signal is idempotent and wakes every current and future waiter.
// The zero value is not usable; construct with NewEvent.
type Event struct {
	ch   chan struct{}
	once sync.Once
}

// NewEvent returns an unsignaled event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Signal marks the event signaled. Safe to call multiple times and from
// multiple goroutines.
func (e *Event) Signal() {
	e.once.Do(func() { close(e.ch) })
}

// Signaled reports whether Signal has been called.
func (e *Event) Signaled() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the event is signaled or the timeout elapses.
// Returns true if the event was signaled, false on timeout. A zero or
// negative timeout polls without blocking.
func (e *Event) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return e.Signaled()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.ch:
		return true
	case <-timer.C:
		return false
	}
}

// Done returns a channel closed when the event is signaled, for use in
// select statements alongside other channels.
func (e *Event) Done() <-chan struct{} {
	return e.ch
}
