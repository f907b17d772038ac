package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags a server-pushed event.
type EventType string

const (
	EventSessionState       EventType = "session_state"
	EventPlayerJoined       EventType = "player_joined"
	EventRoundStarted       EventType = "round_started"
	EventAnswerReceived     EventType = "answer_received"
	EventRoundEnded         EventType = "round_ended"
	EventPlaySong           EventType = "play_song"
	EventStopSong           EventType = "stop_song"
	EventLeaderboardUpdated EventType = "leaderboard_updated"
	EventSessionPaused      EventType = "session_paused"
	EventSessionResumed     EventType = "session_resumed"
)

// Event is the tagged envelope every server frame arrives in.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes a raw WebSocket frame into an event envelope.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to parse event frame: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event frame has no type")
	}
	return ev, nil
}

// PlayerJoinedPayload is the payload for a player_joined event.
type PlayerJoinedPayload struct {
	PlayerName  string `json:"player_name"`
	PlayerCount int    `json:"player_count"`
}

// RoundStartedPayload is the payload for a round_started event. The server
// supplies the authoritative time limit and absolute deadline.
type RoundStartedPayload struct {
	RoundID          int       `json:"round_id"`
	QuestionText     string    `json:"question_text"`
	Options          []string  `json:"options"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
	DeadlineTS       time.Time `json:"deadline_ts"`
	BlockType        BlockType `json:"block_type"`
	BlockOrder       int       `json:"block_order"`
	BlockTitle       string    `json:"block_title,omitempty"`
	Points           int       `json:"points,omitempty"`

	ImageURL  string   `json:"image_url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`

	BackgroundMusicURL string `json:"background_music_url,omitempty"`

	SongURL             string  `json:"song_url,omitempty"`
	SongDurationSeconds float64 `json:"song_duration_seconds,omitempty"`
	SongStartSeconds    float64 `json:"song_start_seconds,omitempty"`
	SongEndSeconds      float64 `json:"song_end_seconds,omitempty"`
	RevealStartSeconds  float64 `json:"reveal_start_seconds,omitempty"`
	RevealEndSeconds    float64 `json:"reveal_end_seconds,omitempty"`

	PhotoSubjectName string `json:"photo_subject_name,omitempty"`
	PhotoRevealURL   string `json:"photo_reveal_url,omitempty"`
}

// Round builds the immutable Round this payload describes.
func (p *RoundStartedPayload) Round() *Round {
	points := p.Points
	if points == 0 {
		points = 10
	}
	return &Round{
		ID:                  p.RoundID,
		QuestionText:        p.QuestionText,
		Options:             p.Options,
		TimeLimitSeconds:    p.TimeLimitSeconds,
		BlockType:           p.BlockType,
		BlockOrder:          p.BlockOrder,
		BlockTitle:          p.BlockTitle,
		Points:              points,
		ImageURL:            p.ImageURL,
		ImageURLs:           p.ImageURLs,
		BackgroundMusicURL:  p.BackgroundMusicURL,
		SongURL:             p.SongURL,
		SongDurationSeconds: p.SongDurationSeconds,
		SongStartSeconds:    p.SongStartSeconds,
		SongEndSeconds:      p.SongEndSeconds,
		RevealStartSeconds:  p.RevealStartSeconds,
		RevealEndSeconds:    p.RevealEndSeconds,
		PhotoSubjectName:    p.PhotoSubjectName,
		PhotoRevealURL:      p.PhotoRevealURL,
	}
}

// AnswerReceivedPayload is the payload for an answer_received event.
type AnswerReceivedPayload struct {
	AnswerCount int `json:"answer_count"`
	PlayerCount int `json:"player_count"`
}

// PlaySongPayload is the payload for a play_song event.
type PlaySongPayload struct {
	SongURL    string    `json:"song_url"`
	Duration   float64   `json:"duration"`
	SongStopTS time.Time `json:"song_stop_ts"`
}

// LeaderboardUpdatedPayload is the payload for a leaderboard_updated event.
type LeaderboardUpdatedPayload struct {
	Leaderboard []Player `json:"leaderboard"`
}

// SessionResumedPayload is the payload for a session_resumed event. It does
// not carry full state; the reducer requests a fresh snapshot instead.
type SessionResumedPayload struct {
	Status string `json:"status"`
}

// Command types sent back to the server over the same connection.
const (
	CommandTimerStarted = "timer_started"
	CommandGetState     = "get_state"
)

// TimerStartedCommand tells the server the on-screen countdown began for a
// round.
type TimerStartedCommand struct {
	Type    string `json:"type"`
	RoundID int    `json:"round_id"`
}

// GetStateCommand requests a fresh full snapshot.
type GetStateCommand struct {
	Type string `json:"type"`
}
