package session

import (
	"github.com/stemsi/exam-portal/internal/model"
)

// View is a JSON snapshot of the session for the client.
type View struct {
	Phase                Phase            `json:"phase"`
	Paper                *model.ExamPaper `json:"paper,omitempty"`
	Answers              []string         `json:"answers,omitempty"`
	CurrentQuestionIndex int              `json:"current_question_index"`
	TimeLeftSeconds      int              `json:"time_left_seconds"`
	Retake               bool             `json:"retake"`
	ConfirmPending       bool             `json:"confirm_pending"`
	// SubmitError is the last failed manual submission, cleared on the next try.
	SubmitError string       `json:"submit_error,omitempty"`
	Blocked     *BlockedView `json:"blocked,omitempty"`
	Outcome     *Outcome     `json:"outcome,omitempty"`
	Error       *ErrorView   `json:"error,omitempty"`
}

// BlockedView is shown instead of the paper when the exam was already taken.
type BlockedView struct {
	Summary      model.ResultSummary `json:"summary"`
	ResultsRoute string              `json:"results_route"`
	Message      string              `json:"message"`
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{Phase: c.state.Phase()}

	switch s := c.state.(type) {
	case Blocked:
		v.Blocked = &BlockedView{
			Summary:      s.Summary,
			ResultsRoute: RouteResults,
			Message:      "You have already taken this exam. Check your results in the dashboard.",
		}
		return v
	case Failed:
		ev := Describe(s.Err)
		v.Error = &ev
		return v
	case Loading:
		return v
	case Completed:
		out := s.Outcome
		v.Outcome = &out
	}

	v.Paper = c.paper
	v.Answers = append([]string(nil), c.answers...)
	v.CurrentQuestionIndex = c.index
	v.TimeLeftSeconds = c.timeLeft
	v.Retake = c.retake
	v.ConfirmPending = c.confirmPending
	if c.lastErr != nil {
		v.SubmitError = c.lastErr.Error()
	}
	return v
}
