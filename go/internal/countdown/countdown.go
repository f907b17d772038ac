// Package countdown drives the on-screen round timer from an absolute
// deadline supplied by the server. It ticks at sub-second cadence so second
// boundaries render without jank, and fires its expiry callback exactly once
// per deadline.
package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// tick cadence; sub-second so the displayed value never lags a boundary.
const tickInterval = 100 * time.Millisecond

// Phase is the timer's lifecycle state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseExpired Phase = "expired"
)

// Timer computes remaining whole seconds against an absolute deadline.
// Replacing the deadline resets the expiry guard and restarts ticking
// immediately; the previous ticker goroutine is stopped, never leaked.
type Timer struct {
	clock    clockwork.Clock
	onExpire func()

	mu       sync.Mutex
	deadline time.Time
	phase    Phase
	fired    bool
	stop     chan struct{}
}

// New creates an idle timer. onExpire may be nil.
func New(clock clockwork.Clock, onExpire func()) *Timer {
	return &Timer{clock: clock, onExpire: onExpire, phase: PhaseIdle}
}

// SetDeadline arms the timer against an absolute deadline. Setting the same
// deadline again is a no-op; a different value replaces the running ticker
// and re-arms the expiry guard.
func (t *Timer) SetDeadline(deadline time.Time) {
	t.mu.Lock()
	if t.phase != PhaseIdle && deadline.Equal(t.deadline) {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	t.deadline = deadline
	t.phase = PhaseRunning
	t.fired = false
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	log.Debug().Time("deadline", deadline).Msg("countdown armed")
	go t.run(deadline, stop)
}

// Clear disarms the timer and returns it to idle.
func (t *Timer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.deadline = time.Time{}
	t.phase = PhaseIdle
	t.fired = false
}

// Remaining returns the remaining whole seconds and whether a deadline is
// armed. After expiry it keeps returning 0, true until cleared or replaced.
func (t *Timer) Remaining() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == PhaseIdle {
		return 0, false
	}
	rem := t.deadline.Sub(t.clock.Now())
	if rem < 0 {
		rem = 0
	}
	return int(rem / time.Second), true
}

// Phase returns the current lifecycle phase.
func (t *Timer) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Timer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) run(deadline time.Time, stop chan struct{}) {
	ticker := t.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if t.clock.Now().Before(deadline) {
				continue
			}
			t.mu.Lock()
			// A replaced deadline closed our stop channel between the tick
			// and this lock; repeated zero-ticks are guarded by fired.
			if t.stop != stop || t.fired {
				t.mu.Unlock()
				return
			}
			t.fired = true
			t.phase = PhaseExpired
			cb := t.onExpire
			t.mu.Unlock()

			if cb != nil {
				cb()
			}
			return
		}
	}
}
