package session

import (
	"errors"
	"fmt"
)

// Load errors.
var (
	ErrAuth          = errors.New("identity cannot be confirmed")
	ErrAuthorization = errors.New("user is not allowed to take exams")
	ErrNotFound      = errors.New("exam not found")
	ErrInvalidExam   = errors.New("exam definition is invalid")
	ErrLoadTimeout   = errors.New("loading timed out")
)

// Action errors. None of them change the session state.
var (
	ErrAlreadyLoaded        = errors.New("session has already been loaded")
	ErrNotActive            = errors.New("session is not active")
	ErrPaused               = errors.New("session is paused")
	ErrSubmitInProgress     = errors.New("submission already in progress")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrAlreadyTaken         = errors.New("exam already taken")
	ErrConfirmationRequired = errors.New("submission must be confirmed first")
	ErrNotCompleted         = errors.New("session has not completed")
	ErrInvalidAnswer        = errors.New("answer is not one of the question's options")
	ErrQuestionIndex        = errors.New("question index out of range")
)

// errStaleProgress signals saved progress that must be discarded. It never
// leaves the package.
var errStaleProgress = errors.New("saved progress is stale")

// PersistenceError wraps a failed document store read or write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsPersistence reports whether err is a document store failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ErrorView is the user-facing description of a failed session.
type ErrorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Route is where the "back" affordance leads; empty means reload.
	Route string `json:"route,omitempty"`
}

// Describe maps a session error to what the student is shown.
func Describe(err error) ErrorView {
	switch {
	case errors.Is(err, ErrAuth):
		return ErrorView{Code: "AUTH_REQUIRED", Message: "User is not authenticated. Please log in.", Route: RouteSignIn}
	case errors.Is(err, ErrAuthorization):
		return ErrorView{Code: "FORBIDDEN", Message: "You do not have permission to access this exam.", Route: RouteDashboard}
	case errors.Is(err, ErrNotFound):
		return ErrorView{Code: "EXAM_NOT_FOUND", Message: "Exam not found.", Route: RouteDashboard}
	case errors.Is(err, ErrInvalidExam):
		return ErrorView{Code: "EXAM_INVALID", Message: "The requested exam could not be loaded. It may have been removed.", Route: RouteDashboard}
	case errors.Is(err, ErrLoadTimeout):
		return ErrorView{Code: "LOAD_TIMEOUT", Message: "Loading timed out. Please try again."}
	case IsPersistence(err):
		return ErrorView{Code: "STORAGE_ERROR", Message: "Failed to load exam: " + err.Error()}
	default:
		return ErrorView{Code: "INTERNAL_ERROR", Message: err.Error()}
	}
}
