// Package sequence orchestrates the per-round multimedia pipeline: narration,
// music playback with seek windows and fades, the countdown, and the reveal
// choreography. Exactly one run is in flight per screen; starting a new run
// cancels the previous one before any of its remaining stages can touch the
// audio or the display.
package sequence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/internal/countdown"
	"github.com/nkarpachev/tvquiz/go/internal/media"
	"github.com/nkarpachev/tvquiz/go/internal/narration"
	"github.com/nkarpachev/tvquiz/go/internal/session"
)

const (
	backgroundVolume = 0.3
	foregroundVolume = 0.8

	statsDwell    = 5 * time.Second
	revealSilence = time.Second
)

// Display receives the visual cues the pipeline emits between audio stages.
type Display interface {
	RevealOptions(roundID int)
	ShowStats(results *session.Results)
	ShowLeaderboard(leaderboard []session.Player)
}

// Config wires the sequencer's collaborators.
type Config struct {
	Narrator narration.Speaker
	Music    media.Player
	Clock    clockwork.Clock
	Display  Display
	Timer    *countdown.Timer
	Sender   session.CommandSender

	// TensionTrackURL loops behind non-music questions unless the round
	// carries its own background track.
	TensionTrackURL string
}

// Sequencer runs one cancellable pipeline at a time.
type Sequencer struct {
	narrator narration.Speaker
	music    media.Player
	clock    clockwork.Clock
	display  Display
	timer    *countdown.Timer
	sender   session.CommandSender

	tensionTrack string

	mu      sync.Mutex
	cancel  context.CancelFunc
	roundID int
}

// New builds a Sequencer from its collaborators.
func New(cfg Config) *Sequencer {
	return &Sequencer{
		narrator:     cfg.Narrator,
		music:        cfg.Music,
		clock:        cfg.Clock,
		display:      cfg.Display,
		timer:        cfg.Timer,
		sender:       cfg.Sender,
		tensionTrack: cfg.TensionTrackURL,
	}
}

// begin supersedes the in-flight run: the old context is cancelled and all
// audio is stopped before the new run's context is handed out.
func (s *Sequencer) begin(roundID int) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.narrator.Stop()
	s.music.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.roundID = roundID
	return ctx
}

// Stop cancels the in-flight run and silences all audio.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.roundID = 0
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.narrator.Stop()
	s.music.Stop()
	s.timer.Clear()
}

// RoundID reports which round the current run belongs to.
func (s *Sequencer) RoundID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roundID
}

// StartQuestion launches the question pipeline for the round's block type.
// The deadline is the server's absolute answer deadline.
func (s *Sequencer) StartQuestion(round *session.Round, deadline *time.Time) {
	if round == nil {
		return
	}
	r := *round
	ctx := s.begin(r.ID)
	go func() {
		log.Info().
			Int("round_id", r.ID).
			Str("block_type", string(r.BlockType)).
			Msg("question sequence started")
		switch {
		case r.IsMusic():
			s.runMusicQuestion(ctx, r, deadline)
		case r.IsPhotoGuess():
			s.runPhotoQuestion(ctx, r, deadline)
		default:
			s.runStandardQuestion(ctx, r, deadline)
		}
	}()
}

func (s *Sequencer) runStandardQuestion(ctx context.Context, r session.Round, deadline *time.Time) {
	s.narrate(ctx, questionScript(&r))
	if ctx.Err() != nil {
		return
	}
	s.armCountdown(r.ID, deadline)
	s.loopBackground(ctx, r.BackgroundMusicURL)
}

func (s *Sequencer) runMusicQuestion(ctx context.Context, r session.Round, deadline *time.Time) {
	if r.SongURL != "" {
		start, end := r.SongWindow()
		err := s.music.Play(ctx, r.SongURL, media.PlayOptions{
			StartSeconds: start,
			EndSeconds:   end,
			Volume:       foregroundVolume,
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Int("round_id", r.ID).Msg("song clip playback failed")
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.display.RevealOptions(r.ID)
	s.narrate(ctx, musicOptionsScript(&r))
	if ctx.Err() != nil {
		return
	}
	s.armCountdown(r.ID, deadline)
}

func (s *Sequencer) runPhotoQuestion(ctx context.Context, r session.Round, deadline *time.Time) {
	s.narrate(ctx, photoPromptScript(&r))
	if ctx.Err() != nil {
		return
	}
	s.armCountdown(r.ID, deadline)
}

// StartReveal launches the reveal pipeline for a finished round.
func (s *Sequencer) StartReveal(round *session.Round, results *session.Results) {
	if results == nil {
		return
	}
	var r *session.Round
	if round != nil {
		copied := *round
		r = &copied
	}
	res := *results
	ctx := s.begin(res.RoundID)
	go s.runReveal(ctx, r, &res)
}

func (s *Sequencer) runReveal(ctx context.Context, r *session.Round, results *session.Results) {
	log.Info().Int("round_id", results.RoundID).Msg("reveal sequence started")
	s.timer.Clear()

	s.narrate(ctx, answerScript(r, results))
	if ctx.Err() != nil {
		return
	}

	if r != nil && r.IsMusic() && r.SongURL != "" {
		s.playRevealClip(ctx, r)
		if ctx.Err() != nil {
			return
		}
	}

	s.display.ShowStats(results)
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(statsDwell):
	}

	s.display.ShowLeaderboard(results.Leaderboard)
	if leader, ok := strictLeader(results.Leaderboard); ok {
		s.narrate(ctx, leaderScript(leader))
	}
}

// playRevealClip replays the song's reveal window at foreground volume, fades
// it out, holds a short silence, and fades the same song back in as a
// background loop.
func (s *Sequencer) playRevealClip(ctx context.Context, r *session.Round) {
	start, end := r.RevealWindow()
	err := s.music.Play(ctx, r.SongURL, media.PlayOptions{
		StartSeconds: start,
		EndSeconds:   end,
		Volume:       foregroundVolume,
	})
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Int("round_id", r.ID).Msg("reveal clip playback failed")
		return
	}
	if ctx.Err() != nil {
		return
	}

	media.Fade(ctx, s.clock, s.music, foregroundVolume, 0)
	s.music.Stop()
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(revealSilence):
	}

	go func() {
		err := s.music.Play(ctx, r.SongURL, media.PlayOptions{
			StartSeconds: start,
			Volume:       0,
			Loop:         true,
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Int("round_id", r.ID).Msg("background continuation failed")
		}
	}()
	media.Fade(ctx, s.clock, s.music, 0, backgroundVolume)
}

// StartSong plays a standalone song push (playing_song phase) until StopSong
// or a newer run supersedes it. The push's stop timestamp drives the
// on-screen countdown; no timer_started report goes out since there is no
// round to answer.
func (s *Sequencer) StartSong(song session.SongPlayback) {
	if song.URL == "" {
		return
	}
	ctx := s.begin(0)
	if !song.StopTS.IsZero() {
		s.timer.SetDeadline(song.StopTS)
	}
	go func() {
		log.Info().Str("url", song.URL).Msg("song playback started")
		err := s.music.Play(ctx, song.URL, media.PlayOptions{Volume: foregroundVolume, Loop: true})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("song playback failed")
		}
	}()
}

// StartFinished narrates the game-over phrase and the winner.
func (s *Sequencer) StartFinished(leaderboard []session.Player) {
	ctx := s.begin(0)
	go func() {
		log.Info().Msg("finale sequence started")
		s.narrate(ctx, finaleScript(leaderboard))
	}()
}

// narrate speaks text and never fails the pipeline: errors are logged and
// the caller proceeds to the next stage.
func (s *Sequencer) narrate(ctx context.Context, text string) {
	if text == "" {
		return
	}
	err := s.narrator.Speak(ctx, text)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("narration failed, sequence continues")
	}
}

// armCountdown starts the on-screen countdown from the server deadline and
// reports it back so the server can begin accepting answers.
func (s *Sequencer) armCountdown(roundID int, deadline *time.Time) {
	if deadline == nil {
		log.Warn().Int("round_id", roundID).Msg("round has no deadline, countdown not armed")
		return
	}
	s.timer.SetDeadline(*deadline)
	s.sender.Send(session.TimerStartedCommand{Type: session.CommandTimerStarted, RoundID: roundID})
}

// loopBackground loops the tension track (or the round's own background
// track) until the run is cancelled.
func (s *Sequencer) loopBackground(ctx context.Context, override string) {
	src := s.tensionTrack
	if override != "" {
		src = override
	}
	if src == "" {
		return
	}
	err := s.music.Play(ctx, src, media.PlayOptions{Volume: backgroundVolume, Loop: true})
	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("background track playback failed")
	}
}
