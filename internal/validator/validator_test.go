package validator

import (
	"testing"

	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stretchr/testify/assert"
)

func validExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:           "exam-1",
		Title:        "Fractions",
		Class:        "7B",
		TimerMinutes: 15,
		Questions: []model.Question{
			{Text: "1/2 + 1/4?", Options: []string{"3/4", "2/6", "1/8", "1"}, CorrectAnswer: "3/4"},
		},
	}
}

func TestExam_Valid(t *testing.T) {
	assert.Nil(t, Exam(validExam()))
}

func TestExam_CorrectAnswerMustBeAnOption(t *testing.T) {
	exam := validExam()
	exam.Questions[0].CorrectAnswer = "C"

	fields := Exam(exam)
	assert.Contains(t, fields, "questions[0].correctAnswer")
	assert.Contains(t, fields["questions[0].correctAnswer"], "options")
}

func TestExam_StructuralRules(t *testing.T) {
	exam := validExam()
	exam.TimerMinutes = 0
	exam.Questions[0].Options = []string{"a", "b", "c"}

	fields := Exam(exam)
	assert.Contains(t, fields, "timer")
	assert.Contains(t, fields, "questions[0].options")
}

func TestExam_NoQuestions(t *testing.T) {
	exam := validExam()
	exam.Questions = nil

	assert.Contains(t, Exam(exam), "questions")
}
