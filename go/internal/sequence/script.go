package sequence

import (
	"fmt"
	"strings"

	"github.com/nkarpachev/tvquiz/go/internal/session"
)

// Narration scripts are composed so that their leading words line up with the
// pre-rendered clip table ("Правильный ответ...", "Время пошло! У вас 20
// секунд.", "Игра окончена!"); the narration layer then plays the cached
// prefix and synthesizes only the remainder.

func timePhrase(seconds int) string {
	if seconds <= 0 {
		seconds = 20
	}
	return fmt.Sprintf("Время пошло! У вас %d секунд.", seconds)
}

func optionsPhrase(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return "Варианты ответов: " + strings.Join(options, ". ") + "."
}

func questionScript(r *session.Round) string {
	parts := []string{strings.TrimSpace(r.QuestionText)}
	if op := optionsPhrase(r.Options); op != "" {
		parts = append(parts, op)
	}
	parts = append(parts, timePhrase(r.TimeLimitSeconds))
	return strings.Join(parts, " ")
}

// musicOptionsScript skips the question text: the song itself is the question.
func musicOptionsScript(r *session.Round) string {
	parts := []string{}
	if op := optionsPhrase(r.Options); op != "" {
		parts = append(parts, op)
	}
	parts = append(parts, timePhrase(r.TimeLimitSeconds))
	return strings.Join(parts, " ")
}

// photoPromptScript narrates the prompt and the time phrase only; the faces
// on screen are the options.
func photoPromptScript(r *session.Round) string {
	return strings.TrimSpace(r.QuestionText) + " " + timePhrase(r.TimeLimitSeconds)
}

func answerScript(r *session.Round, results *session.Results) string {
	if r != nil && r.IsPhotoGuess() && results.PhotoSubjectName != "" {
		return "Правильный ответ... Это " + results.PhotoSubjectName + "!"
	}
	answer := results.CorrectAnswerText
	if answer == "" && results.CorrectOption >= 0 && results.CorrectOption < len(results.Options) {
		answer = results.Options[results.CorrectOption]
	}
	if answer == "" {
		return ""
	}
	return "Правильный ответ... " + answer + "!"
}

func leaderScript(p session.Player) string {
	return fmt.Sprintf("Лидирует %s!", p.Name)
}

func finaleScript(leaderboard []session.Player) string {
	if len(leaderboard) == 0 {
		return "Игра окончена!"
	}
	return fmt.Sprintf("Игра окончена! Побеждает %s!", leaderboard[0].Name)
}

// strictLeader returns the top player iff they strictly outscore the
// runner-up. A tie at the top narrates nothing.
func strictLeader(leaderboard []session.Player) (session.Player, bool) {
	if len(leaderboard) == 0 {
		return session.Player{}, false
	}
	if len(leaderboard) > 1 && leaderboard[0].Score <= leaderboard[1].Score {
		return session.Player{}, false
	}
	return leaderboard[0], true
}
