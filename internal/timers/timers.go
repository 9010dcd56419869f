// Package timers provides cancelable one-shot timer handles for the
// profile state machines. Every multi-step exchange arms a handle on
// state entry and stops it on exit; a fired handle posts back into the
// owning machine's mailbox, never into the timer goroutine itself.
package timers

import (
	"sync"
	"time"
)

// Handle is a reusable one-shot timer. Arming an already-armed handle
// replaces the pending timer. The zero value is ready to use.
type Handle struct {
	mu  sync.Mutex
	t   *time.Timer
	gen uint64
}

// Arm schedules fire to run after d, replacing any pending timer.
// A fire scheduled by an earlier Arm never runs once replaced.
func (h *Handle) Arm(d time.Duration, fire func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.t != nil {
		h.t.Stop()
	}

	h.gen++
	gen := h.gen

	h.t = time.AfterFunc(d, func() {
		h.mu.Lock()
		stale := gen != h.gen
		h.mu.Unlock()

		if !stale {
			fire()
		}
	})
}

// Stop cancels the pending timer, if any. A timer function that has
// already started is marked stale and does not fire its callback.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.t != nil {
		h.t.Stop()
		h.t = nil
	}

	h.gen++
}
