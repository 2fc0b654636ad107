package model

import (
	"time"
)

// AttemptProgress is the durable snapshot of an in-flight attempt.
// Stored at examProgress/{studentId}_{examId}.
type AttemptProgress struct {
	ExamID               string    `json:"examId"`
	StudentID            string    `json:"studentId"`
	Answers              []string  `json:"answers"`
	CurrentQuestionIndex int       `json:"currentQuestionIndex"`
	TimeLeftSeconds      int       `json:"timeLeft"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// FreshProgress returns the initial progress for a new attempt of exam:
// every answer empty, first question, full timer.
func FreshProgress(exam *ExamDefinition, studentID string) AttemptProgress {
	return AttemptProgress{
		ExamID:          exam.ID,
		StudentID:       studentID,
		Answers:         make([]string, len(exam.Questions)),
		TimeLeftSeconds: exam.DurationSeconds(),
	}
}

// FitsExam reports whether the progress can be resumed against exam.
func (p *AttemptProgress) FitsExam(exam *ExamDefinition) bool {
	n := len(exam.Questions)
	return len(p.Answers) == n &&
		p.CurrentQuestionIndex >= 0 && p.CurrentQuestionIndex < n &&
		p.TimeLeftSeconds >= 0 && p.TimeLeftSeconds <= exam.DurationSeconds()
}

// ExamResult is the finalized record of a submitted attempt.
// Stored at examResults/{examId}_{studentId}.
type ExamResult struct {
	ExamID         string    `json:"examId"`
	StudentID      string    `json:"studentId"`
	Answers        []string  `json:"answers"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	SubmittedAt    time.Time `json:"submittedAt"`
	Class          string    `json:"class"`
	TeacherID      string    `json:"teacherId,omitempty"`
	Approved       bool      `json:"approved"`
	RetakeAllowed  bool      `json:"retakeAllowed"`
}

// Percentage returns the score as a percentage of the total questions.
func (r *ExamResult) Percentage() float64 {
	return Percentage(r.Score, r.TotalQuestions)
}

// Percentage returns score/total*100, or 0 when total is 0.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(score) / float64(total) * 100
}

// ResultSummary is the read-only view of a result shown to a student.
type ResultSummary struct {
	ExamID         string    `json:"exam_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     float64   `json:"percentage"`
	SubmittedAt    time.Time `json:"submitted_at"`
	Approved       bool      `json:"approved"`
}

// Summary projects r into a ResultSummary. Scores of unapproved results are
// withheld until a teacher approves them.
func (r *ExamResult) Summary() ResultSummary {
	s := ResultSummary{
		ExamID:         r.ExamID,
		TotalQuestions: r.TotalQuestions,
		SubmittedAt:    r.SubmittedAt,
		Approved:       r.Approved,
	}
	if r.Approved {
		s.Score = r.Score
		s.Percentage = r.Percentage()
	}
	return s
}
