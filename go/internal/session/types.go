package session

import (
	"time"
)

// Status is the phase the session is currently in. Exactly one status holds
// at any time; the server is authoritative.
type Status string

const (
	StatusLobby          Status = "lobby"
	StatusQuestionActive Status = "question_active"
	StatusReveal         Status = "reveal"
	StatusPlayingSong    Status = "playing_song"
	StatusPaused         Status = "paused"
	StatusFinished       Status = "finished"
)

// BlockType classifies a round by the thematic block it belongs to.
type BlockType string

const (
	BlockFacts      BlockType = "facts"
	BlockMusic      BlockType = "music"
	BlockPhotoFun   BlockType = "photo_fun"
	BlockGuessWord  BlockType = "guess_word"
	BlockPhotoGuess BlockType = "photo_guess"
)

// Player is one leaderboard entry.
type Player struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// PlayerResult identifies a player in the correct/incorrect lists of a reveal.
type PlayerResult struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// Round is one question unit. Immutable once installed; replaced when the
// next round starts.
type Round struct {
	ID               int       `json:"id"`
	QuestionText     string    `json:"question_text"`
	Options          []string  `json:"options"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
	BlockType        BlockType `json:"block_type"`
	BlockOrder       int       `json:"block_order"`
	BlockTitle       string    `json:"block_title,omitempty"`
	Points           int       `json:"points"`
	AnswerCount      int       `json:"answer_count,omitempty"`

	ImageURL  string   `json:"image_url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`

	BackgroundMusicURL string `json:"background_music_url,omitempty"`

	// Song window offsets, only meaningful for music rounds.
	SongURL             string  `json:"song_url,omitempty"`
	SongDurationSeconds float64 `json:"song_duration_seconds,omitempty"`
	SongStartSeconds    float64 `json:"song_start_seconds,omitempty"`
	SongEndSeconds      float64 `json:"song_end_seconds,omitempty"`
	RevealStartSeconds  float64 `json:"reveal_start_seconds,omitempty"`
	RevealEndSeconds    float64 `json:"reveal_end_seconds,omitempty"`

	// Photo-guess metadata.
	PhotoSubjectName   string `json:"photo_subject_name,omitempty"`
	PhotoRevealURL     string `json:"photo_reveal_url,omitempty"`
}

// IsMusic reports whether this round plays a song clip before the options.
func (r *Round) IsMusic() bool { return r.BlockType == BlockMusic }

// IsPhotoGuess reports whether this round asks to identify a person on a photo.
func (r *Round) IsPhotoGuess() bool { return r.BlockType == BlockPhotoGuess }

// SongWindow returns the guess-phase clip offsets.
func (r *Round) SongWindow() (start, end float64) {
	return r.SongStartSeconds, r.SongEndSeconds
}

// RevealWindow returns the reveal-phase clip offsets, distinct from the
// guess window.
func (r *Round) RevealWindow() (start, end float64) {
	return r.RevealStartSeconds, r.RevealEndSeconds
}

// State is the local mirror of the authoritative server session state.
type State struct {
	SessionCode   string     `json:"session_code"`
	Title         string     `json:"title"`
	Status        Status     `json:"status"`
	PlayerCount   int        `json:"player_count"`
	CurrentRound  *Round     `json:"current_round"`
	DeadlineTS    *time.Time `json:"deadline_ts"`
	SongStopTS    *time.Time `json:"song_stop_ts"`
	Leaderboard   []Player   `json:"leaderboard"`
	RemovedGuests []string   `json:"removed_guests,omitempty"`
	TotalBlocks   int        `json:"total_blocks,omitempty"`
}

// Results is the reveal-phase payload for the round it correlates with.
// Kept separate from State so the reveal screen can render it on its own
// timing.
type Results struct {
	RoundID           int            `json:"round_id"`
	QuestionText      string         `json:"question_text"`
	Options           []string       `json:"options"`
	CorrectOption     int            `json:"correct_option"`
	CorrectAnswerText string         `json:"correct_answer_text"`
	OptionStats       map[int]int    `json:"option_stats"`
	TotalAnswers      int            `json:"total_answers"`
	CorrectCount      int            `json:"correct_count"`
	ImageURL          string         `json:"image_url,omitempty"`
	CorrectPlayers    []PlayerResult `json:"correct_players"`
	IncorrectPlayers  []PlayerResult `json:"incorrect_players"`
	Leaderboard       []Player       `json:"leaderboard"`

	BlockCompleted      bool `json:"block_completed,omitempty"`
	CompletedBlockOrder int  `json:"completed_block_order,omitempty"`

	// Photo-guess reveal fields.
	PhotoSubjectName string `json:"photo_subject_name,omitempty"`
	PhotoRevealURL   string `json:"photo_reveal_url,omitempty"`
}

// Accuracy returns the share of answers that picked the correct option.
func (r *Results) Accuracy() float64 {
	if r.TotalAnswers == 0 {
		return 0
	}
	return float64(r.OptionStats[r.CorrectOption]) / float64(r.TotalAnswers)
}

// SongPlayback carries the playing_song phase data pushed by the server.
type SongPlayback struct {
	URL    string
	StopTS time.Time
}
