package interlude

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkarpachev/tvquiz/go/internal/media"
	"github.com/nkarpachev/tvquiz/go/internal/session"
)

// blockingPlayer holds each playback open until its context is cancelled,
// the way a real video does until it ends.
type blockingPlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *blockingPlayer) Play(ctx context.Context, src string, opts media.PlayOptions) error {
	p.mu.Lock()
	p.played = append(p.played, src)
	p.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *blockingPlayer) SetVolume(float64) {}
func (p *blockingPlayer) Stop()             {}

func (p *blockingPlayer) sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// stateWith builds a state; blockOrder -1 means no current round.
func stateWith(status session.Status, blockOrder, totalBlocks int) *session.State {
	st := &session.State{Status: status, TotalBlocks: totalBlocks}
	if blockOrder >= 0 {
		st.CurrentRound = &session.Round{ID: (blockOrder + 1) * 10, BlockOrder: blockOrder}
	}
	return st
}

func newScheduler(promo string) (*Scheduler, *blockingPlayer, *clockwork.FakeClock) {
	player := &blockingPlayer{}
	fc := clockwork.NewFakeClock()
	assets := Assets{InterludeDir: "/video/interludes", PromoURL: promo}
	return New(player, fc, assets, nil), player, fc
}

func TestFirstObservationMidGameIsSilent(t *testing.T) {
	s, player, _ := newScheduler("")

	// A restart mid-game must not replay the current block's intro.
	s.Observe(stateWith(session.StatusQuestionActive, 2, 3))
	s.Observe(stateWith(session.StatusQuestionActive, 2, 3))

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, player.sources())
}

func TestIntroPlaysOnBlockChange(t *testing.T) {
	s, player, _ := newScheduler("")

	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusQuestionActive, 0, 3))

	require.Eventually(t, func() bool {
		return len(player.sources()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "/video/interludes/1.mp4", player.sources()[0])

	// Same block again: no new intro.
	s.Observe(stateWith(session.StatusQuestionActive, 0, 3))
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, player.sources(), 1)

	s.Observe(stateWith(session.StatusQuestionActive, 1, 3))
	require.Eventually(t, func() bool {
		return len(player.sources()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, "/video/interludes/3.mp4", player.sources()[1])
}

func TestPromoPlaysOnceOnGameStart(t *testing.T) {
	s, player, _ := newScheduler("/video/promo.mp4")

	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusQuestionActive, 0, 3))

	require.Eventually(t, func() bool {
		return len(player.sources()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "/video/promo.mp4", player.sources()[0])

	// Session reset and a second game start: promo stays played.
	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusQuestionActive, 0, 3))

	require.Eventually(t, func() bool {
		return len(player.sources()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, "/video/interludes/1.mp4", player.sources()[1])
}

func TestBreakPlaysAfterDelay(t *testing.T) {
	s, player, fc := newScheduler("")
	s.Observe(stateWith(session.StatusLobby, -1, 3))
	state := stateWith(session.StatusReveal, 0, 3)

	// First of three blocks done: break video 2 arrives after the delay.
	s.OnResults(&session.Results{RoundID: 5, BlockCompleted: true, CompletedBlockOrder: 0}, state)

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, player.sources())

	fc.Advance(breakDelay)
	require.Eventually(t, func() bool {
		return len(player.sources()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "/video/interludes/2.mp4", player.sources()[0])
}

func TestBreakCancelledByNextIntro(t *testing.T) {
	s, player, fc := newScheduler("")
	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusQuestionActive, 0, 3))
	require.Eventually(t, func() bool { return len(player.sources()) == 1 }, time.Second, time.Millisecond)

	s.OnResults(&session.Results{BlockCompleted: true, CompletedBlockOrder: 0}, stateWith(session.StatusReveal, 0, 3))

	// The next block starts before the 20s delay elapses.
	s.Observe(stateWith(session.StatusQuestionActive, 1, 3))
	require.Eventually(t, func() bool { return len(player.sources()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "/video/interludes/3.mp4", player.sources()[1])

	fc.Advance(breakDelay)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, player.sources(), 2)
}

func TestLastBlockBreakIsSuppressed(t *testing.T) {
	s, player, fc := newScheduler("")
	s.Observe(stateWith(session.StatusLobby, -1, 3))

	// Block 2 is the last of three: the finale owns its slot.
	s.OnResults(&session.Results{BlockCompleted: true, CompletedBlockOrder: 2}, stateWith(session.StatusReveal, 2, 3))

	fc.Advance(breakDelay)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, player.sources())
}

func TestFinalePlaysExactlyOnce(t *testing.T) {
	s, player, _ := newScheduler("")
	s.Observe(stateWith(session.StatusLobby, -1, 3))

	s.Observe(stateWith(session.StatusFinished, -1, 3))
	s.Observe(stateWith(session.StatusFinished, -1, 3))

	require.Eventually(t, func() bool {
		return len(player.sources()) == 1
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.Len(t, player.sources(), 1)
	assert.Equal(t, "/video/interludes/6.mp4", player.sources()[0])
}

func TestLobbyResetRearmsFinale(t *testing.T) {
	s, player, _ := newScheduler("")
	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusFinished, -1, 3))
	require.Eventually(t, func() bool { return len(player.sources()) == 1 }, time.Second, time.Millisecond)

	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusFinished, -1, 3))
	require.Eventually(t, func() bool { return len(player.sources()) == 2 }, time.Second, time.Millisecond)
}

func TestSkipHonorsMinimumViewDelay(t *testing.T) {
	s, _, fc := newScheduler("")
	s.Observe(stateWith(session.StatusLobby, -1, 3))
	s.Observe(stateWith(session.StatusQuestionActive, 0, 3))
	require.Eventually(t, func() bool { return s.Playing() }, time.Second, time.Millisecond)

	assert.False(t, s.Skip())

	fc.Advance(skipDelay)
	assert.True(t, s.Skip())
	require.Eventually(t, func() bool { return !s.Playing() }, time.Second, time.Millisecond)

	assert.False(t, s.Skip())
}
