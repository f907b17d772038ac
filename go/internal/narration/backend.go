package narration

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/clients/quizapi"
	"github.com/nkarpachev/tvquiz/go/internal/media"
)

const (
	defaultBackendPollInterval = time.Second
	defaultBackendMaxAttempts  = 60

	defaultStreamMaxRunes = 120
)

// StreamSynth speaks short phrases through the server's one-shot streaming
// endpoint: the server synthesizes straight into the response body, so there
// is no job to poll. Longer scripts fall through to the job-based proxy.
type StreamSynth struct {
	API    *quizapi.Client
	Player media.Player
	Voice  string

	// MaxRunes caps what goes through the query-string transport; 0 means
	// the default cap.
	MaxRunes int
}

// Speak plays the streamed synthesis of text.
func (s *StreamSynth) Speak(ctx context.Context, text string) error {
	max := s.MaxRunes
	if max <= 0 {
		max = defaultStreamMaxRunes
	}
	if utf8.RuneCountInString(text) > max {
		return ErrPhraseTooLong
	}

	if err := s.Player.Play(ctx, s.API.TTSStreamURL(text, s.Voice), media.PlayOptions{Volume: 1.0}); err != nil {
		return fmt.Errorf("failed to play streamed synthesis: %w", err)
	}
	return nil
}

// Stop halts any streamed playback.
func (s *StreamSynth) Stop() {
	s.Player.Stop()
}

// BackendSynth synthesizes speech through the game server's TTS proxy:
// submit a job, poll until completed, play the proxied audio. The proxy keeps
// provider credentials server-side.
type BackendSynth struct {
	API    *quizapi.Client
	Player media.Player
	Clock  clockwork.Clock
	Voice  string

	PollInterval time.Duration
	MaxAttempts  int
}

// Speak submits text for synthesis and plays the result.
func (b *BackendSynth) Speak(ctx context.Context, text string) error {
	job, err := b.API.SubmitTTS(ctx, quizapi.TTSRequest{Text: text, VoiceID: b.Voice})
	if err != nil {
		return fmt.Errorf("failed to submit TTS job: %w", err)
	}

	audioURL, err := b.resolve(ctx, job)
	if err != nil {
		return err
	}
	if err := b.Player.Play(ctx, audioURL, media.PlayOptions{Volume: 1.0}); err != nil {
		return fmt.Errorf("failed to play synthesized audio: %w", err)
	}
	return nil
}

func (b *BackendSynth) resolve(ctx context.Context, job quizapi.TTSJob) (string, error) {
	// Cached phrases come back completed immediately. Prefer the proxied
	// URL over the provider CDN the job may reference.
	if job.AudioURL != "" {
		if job.TaskID != "" {
			return b.API.TTSAudioURL(job.TaskID), nil
		}
		return job.AudioURL, nil
	}
	if job.TaskID == "" {
		return "", fmt.Errorf("TTS job has neither audio URL nor task ID")
	}

	interval := b.PollInterval
	if interval <= 0 {
		interval = defaultBackendPollInterval
	}
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = defaultBackendMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-b.Clock.After(interval):
		}

		st, err := b.API.TTSJobStatus(ctx, job.TaskID)
		if err != nil {
			log.Warn().Err(err).Str("task_id", job.TaskID).Msg("TTS status poll failed")
			continue
		}
		switch st.Status {
		case "completed":
			return b.API.TTSAudioURL(job.TaskID), nil
		case "failed":
			return "", fmt.Errorf("%w: %s", ErrSynthesisFailed, st.Error)
		}
		// pending / processing: keep polling.
	}
	return "", ErrSynthesisTimeout
}

// Stop halts any playing synthesis output.
func (b *BackendSynth) Stop() {
	b.Player.Stop()
}
