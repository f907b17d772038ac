package countdown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiresExactlyOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	timer := New(fc, func() { fired.Add(1) })

	timer.SetDeadline(fc.Now().Add(5 * time.Second))
	fc.BlockUntil(1)

	fc.Advance(4 * time.Second)
	rem, running := timer.Remaining()
	assert.True(t, running)
	assert.Equal(t, 1, rem)
	assert.Equal(t, int32(0), fired.Load())

	fc.Advance(1100 * time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Repeated queries after expiry never re-fire.
	for i := 0; i < 5; i++ {
		rem, running = timer.Remaining()
		assert.Equal(t, 0, rem)
		assert.True(t, running)
	}
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, PhaseExpired, timer.Phase())
}

func TestReplacedDeadlineRearms(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	timer := New(fc, func() { fired.Add(1) })

	timer.SetDeadline(fc.Now().Add(2 * time.Second))
	fc.BlockUntil(1)
	fc.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A new deadline value resets the guard and restarts ticking.
	timer.SetDeadline(fc.Now().Add(2 * time.Second))
	assert.Equal(t, PhaseRunning, timer.Phase())
	fc.BlockUntil(1)
	fc.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSameDeadlineIsNoOp(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	timer := New(fc, func() { fired.Add(1) })

	deadline := fc.Now().Add(2 * time.Second)
	timer.SetDeadline(deadline)
	fc.BlockUntil(1)
	fc.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Re-sending the identical deadline must not fire a second time.
	timer.SetDeadline(deadline)
	assert.Equal(t, PhaseExpired, timer.Phase())
	assert.Equal(t, int32(1), fired.Load())
}

func TestClearReturnsToIdle(t *testing.T) {
	fc := clockwork.NewFakeClock()
	timer := New(fc, nil)

	timer.SetDeadline(fc.Now().Add(10 * time.Second))
	_, running := timer.Remaining()
	assert.True(t, running)

	timer.Clear()
	_, running = timer.Remaining()
	assert.False(t, running)
	assert.Equal(t, PhaseIdle, timer.Phase())
}

func TestReplacingMidFlightStopsOldTicker(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var fired atomic.Int32
	timer := New(fc, func() { fired.Add(1) })

	timer.SetDeadline(fc.Now().Add(5 * time.Second))
	fc.BlockUntil(1)
	timer.SetDeadline(fc.Now().Add(30 * time.Second))

	// Blowing past the first deadline must not fire: only the replacement
	// deadline counts.
	fc.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	rem, running := timer.Remaining()
	assert.True(t, running)
	assert.Equal(t, 20, rem)
}
