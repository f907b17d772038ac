package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// CommandSender sends a structured command back to the server. Delivery is
// best-effort; implementations drop silently when disconnected.
type CommandSender interface {
	Send(v any)
}

// Transition describes what an applied event changed, for observers that key
// work off phase changes rather than raw events.
type Transition struct {
	From Status
	To   Status

	// RoundChanged is true when the round identity driving the screen
	// changed. Sequences are keyed on round identity, not on re-renders: a
	// re-sent snapshot carrying the same round does not set it.
	RoundChanged bool
	RoundID      int
}

// Changed reports whether the event moved the session to a different phase.
func (t Transition) Changed() bool { return t.From != t.To }

// Reducer owns the local mirror of server session state and applies each
// inbound event as a state transition. Screens hold read-only copies.
type Reducer struct {
	mu sync.RWMutex

	state   *State
	results *Results

	// Derived side-channel values, observable independently of the full
	// state so counters update without re-rendering the whole screen.
	answerCount   int
	playerCount   int
	playerNames   []string
	removedGuests []string
	song          *SongPlayback

	sender CommandSender
}

// NewReducer creates a reducer that issues snapshot requests through sender.
func NewReducer(sender CommandSender) *Reducer {
	return &Reducer{sender: sender}
}

// State returns a copy of the current session state, or nil before the first
// snapshot.
func (r *Reducer) State() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == nil {
		return nil
	}
	st := *r.state
	return &st
}

// Results returns the current reveal payload, or nil outside the reveal
// phase.
func (r *Reducer) Results() *Results {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.results
}

// AnswerCount returns how many answers arrived for the current round.
func (r *Reducer) AnswerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.answerCount
}

// PlayerCount returns the current player count.
func (r *Reducer) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playerCount
}

// PlayerNames returns the roster gathered from snapshots and joins.
func (r *Reducer) PlayerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.playerNames...)
}

// RemovedGuests returns guest names the host removed from the session.
func (r *Reducer) RemovedGuests() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.removedGuests...)
}

// Song returns the active playing_song data, or nil.
func (r *Reducer) Song() *SongPlayback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.song
}

// Apply applies one inbound event. Unknown event types log and no-op;
// malformed payloads return an error and leave state untouched.
func (r *Reducer) Apply(ev Event) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.statusLocked()
	prevRoundID := r.roundIDLocked()

	switch ev.Type {
	case EventSessionState:
		var st State
		if err := json.Unmarshal(ev.Data, &st); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal session_state: %w", err)
		}
		r.state = &st
		r.playerCount = st.PlayerCount
		r.playerNames = r.playerNames[:0]
		for _, p := range st.Leaderboard {
			r.playerNames = append(r.playerNames, p.Name)
		}
		r.removedGuests = st.RemovedGuests
		if st.CurrentRound != nil {
			r.answerCount = st.CurrentRound.AnswerCount
		}

	case EventPlayerJoined:
		var p PlayerJoinedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal player_joined: %w", err)
		}
		r.playerCount = p.PlayerCount
		if r.state != nil {
			r.state.PlayerCount = p.PlayerCount
		}
		if p.PlayerName != "" {
			r.playerNames = append(r.playerNames, p.PlayerName)
		}

	case EventRoundStarted:
		var p RoundStartedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal round_started: %w", err)
		}
		if r.state == nil {
			log.Warn().Int("round_id", p.RoundID).Msg("round_started before first snapshot, dropping")
			return Transition{}, nil
		}
		r.state.Status = StatusQuestionActive
		r.state.CurrentRound = p.Round()
		deadline := p.DeadlineTS
		r.state.DeadlineTS = &deadline
		r.answerCount = 0
		r.results = nil

	case EventAnswerReceived:
		var p AnswerReceivedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal answer_received: %w", err)
		}
		r.answerCount = p.AnswerCount
		r.playerCount = p.PlayerCount
		if r.state != nil {
			r.state.PlayerCount = p.PlayerCount
		}

	case EventRoundEnded:
		var res Results
		if err := json.Unmarshal(ev.Data, &res); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal round_ended: %w", err)
		}
		if r.state == nil {
			log.Warn().Int("round_id", res.RoundID).Msg("round_ended before first snapshot, dropping")
			return Transition{}, nil
		}
		r.state.Status = StatusReveal
		r.state.DeadlineTS = nil
		r.results = &res

	case EventPlaySong:
		var p PlaySongPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal play_song: %w", err)
		}
		if r.state == nil {
			return Transition{}, nil
		}
		r.state.Status = StatusPlayingSong
		stop := p.SongStopTS
		r.state.SongStopTS = &stop
		r.song = &SongPlayback{URL: p.SongURL, StopTS: p.SongStopTS}

	case EventStopSong:
		if r.state == nil {
			return Transition{}, nil
		}
		r.state.Status = StatusReveal
		r.state.SongStopTS = nil
		r.song = nil

	case EventLeaderboardUpdated:
		var p LeaderboardUpdatedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return Transition{}, fmt.Errorf("failed to unmarshal leaderboard_updated: %w", err)
		}
		if r.state != nil {
			r.state.Leaderboard = p.Leaderboard
		}

	case EventSessionPaused:
		// Round and deadline stay underneath so a resume snapshot can
		// restore them.
		if r.state == nil {
			return Transition{}, nil
		}
		r.state.Status = StatusPaused

	case EventSessionResumed:
		// The event does not carry full state. Never guess the status to
		// resume into; ask for a fresh snapshot instead.
		if r.sender != nil {
			r.sender.Send(GetStateCommand{Type: CommandGetState})
		}

	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("unknown event type, ignoring")
		return Transition{}, nil
	}

	to := r.statusLocked()
	roundID := r.roundIDLocked()
	return Transition{
		From:         from,
		To:           to,
		RoundChanged: roundID != 0 && roundID != prevRoundID,
		RoundID:      roundID,
	}, nil
}

func (r *Reducer) statusLocked() Status {
	if r.state == nil {
		return ""
	}
	return r.state.Status
}

func (r *Reducer) roundIDLocked() int {
	if r.state == nil || r.state.CurrentRound == nil {
		return 0
	}
	return r.state.CurrentRound.ID
}
