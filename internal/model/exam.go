package model

import (
	"time"
)

// OptionsPerQuestion is the fixed number of choices every question carries.
const OptionsPerQuestion = 4

// ExamDefinition is an exam as authored by a teacher. Sessions only read it.
type ExamDefinition struct {
	ID           string     `json:"id" validate:"required"`
	Title        string     `json:"title" validate:"required,max=255"`
	Class        string     `json:"class"`
	TeacherID    string     `json:"teacherId,omitempty"`
	TimerMinutes int        `json:"timer" validate:"required,min=1,max=480"`
	Questions    []Question `json:"questions" validate:"required,min=1,dive"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Question is a single multiple-choice question. CorrectAnswer holds the
// option text, not its letter.
type Question struct {
	Text          string   `json:"text" validate:"required"`
	ImageURL      string   `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Options       []string `json:"options" validate:"len=4,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
}

// HasOption reports whether value is one of the question's options.
func (q Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if o == value {
			return true
		}
	}
	return false
}

// DurationSeconds returns the full timer length of the exam in seconds.
func (e *ExamDefinition) DurationSeconds() int {
	return e.TimerMinutes * 60
}

// Paper builds the student-facing view of the exam (no correct answers).
func (e *ExamDefinition) Paper() ExamPaper {
	questions := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		questions[i] = QuestionForStudent{
			Index:    i,
			Text:     q.Text,
			ImageURL: q.ImageURL,
			Options:  opts,
		}
	}
	return ExamPaper{
		ExamID:       e.ID,
		Title:        e.Title,
		Class:        e.Class,
		TimerMinutes: e.TimerMinutes,
		Questions:    questions,
	}
}

// ExamPaper is the payload sent to students while they take an exam.
type ExamPaper struct {
	ExamID       string               `json:"exam_id"`
	Title        string               `json:"title"`
	Class        string               `json:"class"`
	TimerMinutes int                  `json:"timer_minutes"`
	Questions    []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer.
type QuestionForStudent struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	ImageURL string   `json:"image_url,omitempty"`
	Options  []string `json:"options"`
}
