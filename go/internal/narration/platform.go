package narration

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// SystemSpeech is the last-resort narration adapter: the platform's built-in
// speech synthesizer, driven as a subprocess (macOS say, Linux espeak).
type SystemSpeech struct {
	binary string
	lang   string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewSystemSpeech picks the platform binary unless one is configured.
func NewSystemSpeech(binary, lang string) *SystemSpeech {
	if binary == "" {
		for _, candidate := range []string{"say", "espeak-ng", "espeak"} {
			if _, err := exec.LookPath(candidate); err == nil {
				binary = candidate
				break
			}
		}
	}
	if lang == "" {
		lang = "ru"
	}
	return &SystemSpeech{binary: binary, lang: lang}
}

// Speak runs the speech binary and waits for it to finish.
func (s *SystemSpeech) Speak(ctx context.Context, text string) error {
	if s.binary == "" {
		return ErrNotConfigured
	}

	var cmd *exec.Cmd
	switch s.binary {
	case "say":
		cmd = exec.CommandContext(ctx, s.binary, text)
	default:
		cmd = exec.CommandContext(ctx, s.binary, "-v", s.lang, text)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cmd = nil
		s.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("platform speech failed: %w", err)
	}
	return nil
}

// Stop kills any in-flight speech process.
func (s *SystemSpeech) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}
