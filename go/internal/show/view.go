package show

import (
	"github.com/rs/zerolog/log"

	"github.com/nkarpachev/tvquiz/go/internal/session"
)

// LogView is the rendering stand-in: it turns display cues into structured
// log lines. The actual TV surface subscribes to the same interfaces.
type LogView struct{}

// RevealOptions reports that a music round's options may now be shown.
func (LogView) RevealOptions(roundID int) {
	log.Info().Int("round_id", roundID).Msg("options revealed")
}

// ShowStats reports the answer distribution view.
func (LogView) ShowStats(results *session.Results) {
	log.Info().
		Int("round_id", results.RoundID).
		Int("total_answers", results.TotalAnswers).
		Int("correct_count", results.CorrectCount).
		Float64("accuracy", results.Accuracy()).
		Msg("answer stats shown")
}

// ShowLeaderboard reports the full-screen leaderboard view.
func (LogView) ShowLeaderboard(leaderboard []session.Player) {
	ev := log.Info()
	if len(leaderboard) > 0 {
		ev = ev.Str("leader", leaderboard[0].Name).Int("score", leaderboard[0].Score)
	}
	ev.Msg("leaderboard shown")
}

// InterludeStarted reports a video interlude taking over the screen.
func (LogView) InterludeStarted(video int, src string) {
	log.Info().Int("video", video).Str("src", src).Msg("interlude on screen")
}

// InterludeEnded reports the interlude releasing the screen.
func (LogView) InterludeEnded(video int) {
	log.Info().Int("video", video).Msg("interlude finished")
}
