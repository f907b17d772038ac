// Package interlude schedules the pre-recorded video breaks between question
// blocks: an intro when a new block begins, a break a short while after a
// block's last reveal, a one-shot promo when the game leaves the lobby, and a
// single finale. Blocks are counted from zero on the wire; block N's intro
// video is N*2+1 and its break is N*2+2, so the finale (totalBlocks*2) takes
// over the slot the last block's break would have used.
package interlude

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/internal/media"
	"github.com/nkarpachev/tvquiz/go/internal/session"
)

const (
	// breakDelay lets the reveal sequence finish before the break video
	// takes over the screen.
	breakDelay = 20 * time.Second

	// skipDelay is the minimum view time before Skip takes effect.
	skipDelay = 3 * time.Second
)

// Assets locates the video files.
type Assets struct {
	// InterludeDir holds numbered files: {dir}/1.mp4, {dir}/2.mp4, ...
	InterludeDir string
	// PromoURL is the one-shot promo video; empty disables the promo.
	PromoURL string
}

// Interlude returns the path of the numbered interlude video.
func (a Assets) Interlude(n int) string {
	return fmt.Sprintf("%s/%d.mp4", strings.TrimRight(a.InterludeDir, "/"), n)
}

func introVideo(blockOrder int) int { return blockOrder*2 + 1 }
func breakVideo(blockOrder int) int { return blockOrder*2 + 2 }

func finaleVideo(totalBlocks int) int { return totalBlocks * 2 }

// Display is notified when an interlude takes over or releases the screen.
// Both methods may be called from scheduler goroutines.
type Display interface {
	InterludeStarted(video int, src string)
	InterludeEnded(video int)
}

type playback struct {
	video     int
	cancel    context.CancelFunc
	startedAt time.Time
	skipped   bool
}

// Scheduler reacts to session state transitions and round results.
type Scheduler struct {
	player  media.Player
	clock   clockwork.Clock
	assets  Assets
	display Display

	mu          sync.Mutex
	initialized bool
	prevStatus  session.Status
	// prevBlockOrder is -1 until a block has been observed.
	prevBlockOrder int
	finalePlayed   bool
	promoPlayed    bool
	pendingBreak   clockwork.Timer
	current        *playback
}

// New creates a scheduler. display may be nil.
func New(player media.Player, clock clockwork.Clock, assets Assets, display Display) *Scheduler {
	return &Scheduler{player: player, clock: clock, assets: assets, display: display, prevBlockOrder: -1}
}

// Observe feeds the scheduler a freshly reduced session state. The first
// observation initializes the block guard silently so a process restart
// mid-game does not replay intros.
func (s *Scheduler) Observe(state *session.State) {
	if state == nil {
		return
	}

	s.mu.Lock()
	status := state.Status
	block := s.prevBlockOrder
	if state.CurrentRound != nil && state.CurrentRound.BlockOrder >= 0 {
		block = state.CurrentRound.BlockOrder
	}

	var start func()
	switch {
	case !s.initialized:
		s.initialized = true

	case status == session.StatusLobby:
		// Session reset: clear everything but the one-shot promo guard.
		s.prevBlockOrder = -1
		s.finalePlayed = false
		s.stopPendingBreakLocked()

	case s.prevStatus == session.StatusLobby && !s.promoPlayed && s.assets.PromoURL != "":
		s.promoPlayed = true
		start = s.startLocked(0, s.assets.PromoURL)

	case status == session.StatusFinished && !s.finalePlayed:
		s.finalePlayed = true
		s.stopPendingBreakLocked()
		if state.TotalBlocks > 0 {
			video := finaleVideo(state.TotalBlocks)
			start = s.startLocked(video, s.assets.Interlude(video))
		}

	case status == session.StatusQuestionActive && block != s.prevBlockOrder:
		s.stopPendingBreakLocked()
		video := introVideo(block)
		start = s.startLocked(video, s.assets.Interlude(video))
	}

	s.prevStatus = status
	if status != session.StatusLobby {
		s.prevBlockOrder = block
	}
	s.mu.Unlock()

	if start != nil {
		start()
	}
}

// OnResults schedules the block's break video when the results close out a
// block. The last block gets no break; the finale replaces it.
func (s *Scheduler) OnResults(results *session.Results, state *session.State) {
	if results == nil || !results.BlockCompleted || results.CompletedBlockOrder < 0 {
		return
	}
	if state != nil && state.TotalBlocks > 0 && results.CompletedBlockOrder >= state.TotalBlocks-1 {
		log.Debug().Int("block_order", results.CompletedBlockOrder).Msg("last block completed, break suppressed")
		return
	}

	video := breakVideo(results.CompletedBlockOrder)
	s.mu.Lock()
	s.stopPendingBreakLocked()
	s.pendingBreak = s.clock.AfterFunc(breakDelay, func() { s.firePendingBreak(video) })
	s.mu.Unlock()
	log.Info().Int("video", video).Dur("delay", breakDelay).Msg("break interlude scheduled")
}

func (s *Scheduler) firePendingBreak(video int) {
	s.mu.Lock()
	if s.pendingBreak == nil {
		s.mu.Unlock()
		return
	}
	s.pendingBreak = nil
	start := s.startLocked(video, s.assets.Interlude(video))
	s.mu.Unlock()
	start()
}

// Skip ends the current interlude early. It is a no-op before the minimum
// view delay elapses, and idempotent against double invocation.
func (s *Scheduler) Skip() bool {
	s.mu.Lock()
	cur := s.current
	if cur == nil || cur.skipped || s.clock.Since(cur.startedAt) < skipDelay {
		s.mu.Unlock()
		return false
	}
	cur.skipped = true
	s.mu.Unlock()

	log.Info().Int("video", cur.video).Msg("interlude skipped")
	cur.cancel()
	return true
}

// Playing reports whether an interlude currently owns the screen.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Stop cancels any current playback and pending break.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopPendingBreakLocked()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.cancel()
	}
}

func (s *Scheduler) stopPendingBreakLocked() {
	if s.pendingBreak != nil {
		s.pendingBreak.Stop()
		s.pendingBreak = nil
	}
}

// startLocked replaces the current playback and returns a closure that
// launches it; the caller runs the closure after releasing the lock so
// display callbacks never run under it.
func (s *Scheduler) startLocked(video int, src string) func() {
	if s.current != nil {
		s.current.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{video: video, cancel: cancel, startedAt: s.clock.Now()}
	s.current = pb

	return func() {
		if s.display != nil {
			s.display.InterludeStarted(video, src)
		}
		go func() {
			log.Info().Int("video", video).Str("src", src).Msg("interlude playback started")
			err := s.player.Play(ctx, src, media.PlayOptions{Volume: 1.0})
			if err != nil && ctx.Err() == nil {
				// Auto-advance: a missing or broken file never blocks the show.
				log.Warn().Err(err).Str("src", src).Msg("interlude playback failed")
			}
			s.mu.Lock()
			if s.current == pb {
				s.current = nil
			}
			s.mu.Unlock()
			if s.display != nil {
				s.display.InterludeEnded(video)
			}
		}()
	}
}
