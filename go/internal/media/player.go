// Package media is a thin control surface over audio/video playback. It turns
// callback-style "ended"/"error" plumbing into a single blocking Play call so
// sequencing code reads as flat sequential logic.
package media

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// PlayOptions controls one playback.
type PlayOptions struct {
	// StartSeconds seeks before playback begins; zero plays from the top.
	StartSeconds float64
	// EndSeconds stops playback at this offset; zero plays to the end.
	EndSeconds float64
	// Volume is 0..1; zero means "leave the current volume alone".
	Volume float64
	// Loop restarts the source until the context is cancelled.
	Loop bool
}

// Player plays one source at a time. Play blocks until playback completes,
// errors, or ctx is cancelled; starting a new playback implicitly releases
// the previous one.
type Player interface {
	Play(ctx context.Context, src string, opts PlayOptions) error
	SetVolume(v float64)
	Stop()
}

// Fade constants shared by every fade in the show.
const (
	FadeSteps    = 12
	FadeDuration = 1200 * time.Millisecond
)

// Fade linearly interpolates the player volume from one level to another over
// FadeDuration, in FadeSteps fixed steps. It returns early when ctx is
// cancelled.
func Fade(ctx context.Context, clock clockwork.Clock, p Player, from, to float64) {
	step := (to - from) / FadeSteps
	interval := FadeDuration / FadeSteps
	for i := 1; i <= FadeSteps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-clock.After(interval):
		}
		if i == FadeSteps {
			// Land exactly on the target; accumulated steps drift.
			p.SetVolume(to)
			return
		}
		p.SetVolume(from + step*float64(i))
	}
}
