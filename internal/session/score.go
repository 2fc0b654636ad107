package session

import (
	"github.com/stemsi/exam-portal/internal/model"
)

// Score counts the answers equal to their question's correct answer.
// Unanswered slots never match.
func Score(questions []model.Question, answers []string) int {
	score := 0
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		if answers[i] != "" && answers[i] == q.CorrectAnswer {
			score++
		}
	}
	return score
}
