// Package show binds the pieces of the TV client together: inbound events go
// through the session reducer, the resulting transitions drive the multimedia
// sequencer and the interlude scheduler, and the countdown's expiry reports
// back to the game server.
package show

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/clients/quizapi"
	"github.com/nkarpachev/tvquiz/go/internal/countdown"
	"github.com/nkarpachev/tvquiz/go/internal/interlude"
	"github.com/nkarpachev/tvquiz/go/internal/media"
	"github.com/nkarpachev/tvquiz/go/internal/narration"
	"github.com/nkarpachev/tvquiz/go/internal/sequence"
	"github.com/nkarpachev/tvquiz/go/internal/session"
)

const endRoundTimeout = 10 * time.Second

// Config wires the director's collaborators.
type Config struct {
	SessionCode string
	Clock       clockwork.Clock

	// Sender carries commands back over the event connection.
	Sender session.CommandSender
	// API is the game server's REST surface; used to end rounds on expiry.
	API *quizapi.Client

	Narrator narration.Speaker
	// Music drives audio playback for the sequencer; Video drives full-screen
	// interlude playback. They may be distinct engines.
	Music media.Player
	Video media.Player

	Display         sequence.Display
	InterludeView   interlude.Display
	TensionTrackURL string
	InterludeAssets interlude.Assets
}

// Director routes reduced transitions to the right pipeline.
type Director struct {
	sessionCode string
	api         *quizapi.Client
	sender      session.CommandSender

	reducer    *session.Reducer
	timer      *countdown.Timer
	sequencer  *sequence.Sequencer
	interludes *interlude.Scheduler
}

// New assembles a director and the components it owns.
func New(cfg Config) *Director {
	d := &Director{
		sessionCode: cfg.SessionCode,
		api:         cfg.API,
		sender:      cfg.Sender,
	}
	d.reducer = session.NewReducer(cfg.Sender)
	d.timer = countdown.New(cfg.Clock, d.onCountdownExpired)
	d.sequencer = sequence.New(sequence.Config{
		Narrator:        cfg.Narrator,
		Music:           cfg.Music,
		Clock:           cfg.Clock,
		Display:         cfg.Display,
		Timer:           d.timer,
		Sender:          cfg.Sender,
		TensionTrackURL: cfg.TensionTrackURL,
	})
	d.interludes = interlude.New(cfg.Video, cfg.Clock, cfg.InterludeAssets, cfg.InterludeView)
	return d
}

// Reducer exposes the session state mirror for read-only consumers.
func (d *Director) Reducer() *session.Reducer { return d.reducer }

// Timer exposes the countdown for display consumers.
func (d *Director) Timer() *countdown.Timer { return d.timer }

// SkipInterlude forwards a manual skip request.
func (d *Director) SkipInterlude() bool { return d.interludes.Skip() }

// HandleEvent is the gateway's event callback.
func (d *Director) HandleEvent(ev session.Event) {
	tr, err := d.reducer.Apply(ev)
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event dropped")
		return
	}
	state := d.reducer.State()
	if state == nil {
		return
	}

	d.interludes.Observe(state)

	switch {
	case ev.Type == session.EventRoundEnded:
		results := d.reducer.Results()
		d.sequencer.StartReveal(state.CurrentRound, results)
		d.interludes.OnResults(results, state)

	case ev.Type == session.EventPlaySong:
		if song := d.reducer.Song(); song != nil {
			d.sequencer.StartSong(*song)
		}

	case ev.Type == session.EventStopSong:
		d.sequencer.Stop()

	case tr.RoundChanged && state.Status == session.StatusQuestionActive:
		d.sequencer.StartQuestion(state.CurrentRound, state.DeadlineTS)

	case tr.Changed() && state.Status == session.StatusPaused:
		log.Info().Msg("session paused")
		d.sequencer.Stop()

	case tr.Changed() && state.Status == session.StatusFinished:
		d.sequencer.StartFinished(state.Leaderboard)

	case tr.Changed() && state.Status == session.StatusLobby:
		d.sequencer.Stop()
	}
}

// OnConnectivity is the gateway's connectivity callback. A fresh snapshot is
// requested on every (re)connect so the screen converges after a gap.
func (d *Director) OnConnectivity(connected bool) {
	if connected {
		log.Info().Str("session", d.sessionCode).Msg("connected")
		d.sender.Send(session.GetStateCommand{Type: session.CommandGetState})
		return
	}
	log.Warn().Str("session", d.sessionCode).Msg("connection lost, reconnecting")
}

func (d *Director) onCountdownExpired() {
	// The countdown also runs during playing_song, off the song's stop
	// timestamp; only an active question closes with an end-round call.
	state := d.reducer.State()
	if state == nil || state.CurrentRound == nil || state.Status != session.StatusQuestionActive {
		return
	}
	roundID := state.CurrentRound.ID
	log.Info().Int("round_id", roundID).Msg("countdown expired, ending round")

	// Fire and forget: the server also has its own timer, so a failed call
	// only delays the reveal.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), endRoundTimeout)
		defer cancel()
		if err := d.api.EndRound(ctx, d.sessionCode, roundID); err != nil {
			log.Warn().Err(err).Int("round_id", roundID).Msg("end-round call failed")
		}
	}()
}
