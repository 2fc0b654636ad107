package session

import (
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// Phase names the state a session is in.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseBlocked    Phase = "blocked"
	PhaseRunning    Phase = "running"
	PhasePaused     Phase = "paused"
	PhaseSubmitting Phase = "submitting"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// Routes of the surrounding application the session hands control to.
const (
	RouteDashboard = "/student-dashboard"
	RouteResults   = "/student-dashboard/results"
	RouteSignIn    = "/"
)

// State is one of Loading, Blocked, Active, Submitting, Completed or Failed.
type State interface {
	Phase() Phase
	isState()
}

// Loading is the initial state: identity, exam and saved attempt are being resolved.
type Loading struct{}

// Blocked is entered when a result exists and no retake was granted.
type Blocked struct {
	Summary model.ResultSummary
}

// Active accepts answers and navigation. The countdown only runs when not Paused.
type Active struct {
	Paused bool
}

// Submitting is held while the result is being written. Auto marks a
// timeout-triggered submission.
type Submitting struct {
	Auto bool
}

// Completed holds the locally computed outcome.
type Completed struct {
	Outcome Outcome
}

// Failed is the terminal error state.
type Failed struct {
	Err error
}

func (Loading) Phase() Phase    { return PhaseLoading }
func (Blocked) Phase() Phase    { return PhaseBlocked }
func (Submitting) Phase() Phase { return PhaseSubmitting }
func (Completed) Phase() Phase  { return PhaseCompleted }
func (Failed) Phase() Phase     { return PhaseError }

func (a Active) Phase() Phase {
	if a.Paused {
		return PhasePaused
	}
	return PhaseRunning
}

func (Loading) isState()    {}
func (Blocked) isState()    {}
func (Active) isState()     {}
func (Submitting) isState() {}
func (Completed) isState()  {}
func (Failed) isState()     {}

// Outcome is what the student sees after submitting.
type Outcome struct {
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     float64   `json:"percentage"`
	SubmittedAt    time.Time `json:"submitted_at"`
	Auto           bool      `json:"auto"`
	// SyncPending is set when the result could not be stored and was handed
	// to the background sync queue.
	SyncPending bool   `json:"sync_pending"`
	Message     string `json:"message"`
	Note        string `json:"note"`
}

// Redirect tells the caller where to send the student after acknowledging.
type Redirect struct {
	Route        string `json:"route"`
	Notification string `json:"notification,omitempty"`
}

const (
	msgSubmitted   = "Exam submitted successfully!"
	msgSyncPending = "Exam submitted. Your result was saved on this device and will be synced shortly."
	msgPending     = "Your results are pending teacher approval."
)
