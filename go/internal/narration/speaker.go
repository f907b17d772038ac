// Package narration turns text into spoken audio on the TV. Adapters are
// ordered by an explicit priority list: pre-rendered clips, the server's
// one-shot streaming endpoint for short phrases, the job-based synthesis
// proxy, a direct provider API when credentials are present, a platform
// speech fallback, and a silent terminal. Any adapter failure falls through
// to the next so a flaky provider never blocks the show.
package narration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/clients/quizapi"
	"github.com/nkarpachev/tvquiz/go/internal/media"
)

var (
	// ErrNoMatch means the clip cache holds nothing for this text.
	ErrNoMatch = errors.New("no cached clip for text")
	// ErrNotConfigured means the adapter lacks credentials or configuration.
	ErrNotConfigured = errors.New("narration adapter not configured")
	// ErrPhraseTooLong means the streaming endpoint skipped a long script.
	ErrPhraseTooLong = errors.New("phrase too long to stream")
	// ErrSynthesisFailed is a terminal provider failure, distinct from a
	// poll timeout.
	ErrSynthesisFailed = errors.New("synthesis job failed")
	// ErrSynthesisTimeout means the poll attempt budget ran out.
	ErrSynthesisTimeout = errors.New("synthesis job timed out")
)

// Speaker speaks text aloud. Speak returns once playback finishes (or
// immediately when there is nothing to play); Stop halts any active playback.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Config selects and parameterizes the adapter chain. No ambient environment
// lookups happen at call sites; everything is decided here at construction.
type Config struct {
	ClipTablePath string
	Voice         string

	// StreamMaxRunes caps phrases sent to the one-shot streaming endpoint.
	StreamMaxRunes int

	BackendPollInterval time.Duration
	BackendMaxAttempts  int

	DirectBaseURL      string
	DirectAPIKey       string
	DirectVoiceID      string
	DirectPollInterval time.Duration
	DirectMaxAttempts  int

	// SpeechBinary overrides platform speech autodetection (say/espeak).
	SpeechBinary string
	SpeechLang   string
}

// NewSpeaker assembles the full adapter chain per the config's priority
// order.
func NewSpeaker(cfg Config, api *quizapi.Client, player media.Player, clock clockwork.Clock) (Speaker, error) {
	synth := []Speaker{}

	if api != nil {
		synth = append(synth, &StreamSynth{
			API:      api,
			Player:   player,
			Voice:    cfg.Voice,
			MaxRunes: cfg.StreamMaxRunes,
		})
		synth = append(synth, &BackendSynth{
			API:          api,
			Player:       player,
			Clock:        clock,
			Voice:        cfg.Voice,
			PollInterval: cfg.BackendPollInterval,
			MaxAttempts:  cfg.BackendMaxAttempts,
		})
	}
	synth = append(synth, NewDirectSynth(cfg, player, clock))
	synth = append(synth, NewSystemSpeech(cfg.SpeechBinary, cfg.SpeechLang))
	synth = append(synth, Silence{})

	synthChain := &Chain{Speakers: synth}

	speakers := []Speaker{synthChain}
	if cfg.ClipTablePath != "" {
		table, err := LoadClipTable(cfg.ClipTablePath)
		if err != nil {
			return nil, err
		}
		cache := &ClipCache{Table: table, Player: player, Remainder: synthChain}
		speakers = []Speaker{cache, synthChain}
	}

	return NewNarrator(&Chain{Speakers: speakers}), nil
}

// Silence is the chain terminal: it accepts any text without playing
// anything, so a fully degraded chain still resolves.
type Silence struct{}

func (Silence) Speak(context.Context, string) error { return nil }

func (Silence) Stop() {}

// Chain tries each speaker in priority order, falling through on error.
type Chain struct {
	Speakers []Speaker
}

// Speak runs the chain. Only a context cancellation propagates immediately;
// adapter failures are logged and the next adapter is tried.
func (c *Chain) Speak(ctx context.Context, text string) error {
	var lastErr error
	for _, s := range c.Speakers {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.Speak(ctx, text)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		if !errors.Is(err, ErrNoMatch) && !errors.Is(err, ErrNotConfigured) && !errors.Is(err, ErrPhraseTooLong) {
			log.Warn().Err(err).Msg("narration adapter failed, falling through")
		}
	}
	return lastErr
}

// Stop halts every adapter in the chain.
func (c *Chain) Stop() {
	for _, s := range c.Speakers {
		s.Stop()
	}
}

// Narrator enforces the single-task invariant: at most one narration plays at
// a time, and a new Speak implicitly stops the previous one.
type Narrator struct {
	chain Speaker

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewNarrator wraps a speaker chain with task management.
func NewNarrator(chain Speaker) *Narrator {
	return &Narrator{chain: chain}
}

// Speak speaks text, cancelling and stopping any in-flight narration first.
func (n *Narrator) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
		n.chain.Stop()
	}
	taskCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.mu.Unlock()
	defer cancel()

	taskID := uuid.NewString()[:8]
	log.Debug().Str("task_id", taskID).Str("text", text).Msg("narration started")
	err := n.chain.Speak(taskCtx, text)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("narration failed on every adapter")
	} else {
		log.Debug().Str("task_id", taskID).Msg("narration finished")
	}
	return err
}

// Stop cancels the active narration task, if any.
func (n *Narrator) Stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	n.chain.Stop()
}
