package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrAuthRequired       ErrCode = "AUTH_REQUIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound       ErrCode = "NOT_FOUND"
	ErrResultNotFound ErrCode = "RESULT_NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotFound         ErrCode = "EXAM_NOT_FOUND"
	ErrExamInvalid          ErrCode = "EXAM_INVALID"
	ErrExamAlreadyTaken     ErrCode = "EXAM_ALREADY_TAKEN"
	ErrExamNotActive        ErrCode = "EXAM_NOT_ACTIVE"
	ErrExamPaused           ErrCode = "EXAM_PAUSED"
	ErrSubmitInProgress     ErrCode = "SUBMIT_IN_PROGRESS"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrConfirmationRequired ErrCode = "CONFIRMATION_REQUIRED"
	ErrNotCompleted         ErrCode = "NOT_COMPLETED"
	ErrInvalidAnswer        ErrCode = "INVALID_ANSWER"
	ErrQuestionIndex        ErrCode = "QUESTION_INDEX_OUT_OF_RANGE"
	ErrLoadTimeout          ErrCode = "LOAD_TIMEOUT"
	ErrStorage              ErrCode = "STORAGE_ERROR"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrAuthRequired:
		return "User is not authenticated. Please log in."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this exam."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrUnknownAction:
		return "Unknown action."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrResultNotFound:
		return "No result found for this exam."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Exam not found."
	case ErrExamInvalid:
		return "The requested exam could not be loaded. It may have been removed."
	case ErrExamAlreadyTaken:
		return "You have already taken this exam."
	case ErrExamNotActive:
		return "The exam is not in progress."
	case ErrExamPaused:
		return "Resume the exam before submitting."
	case ErrSubmitInProgress:
		return "Your exam is being submitted."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrConfirmationRequired:
		return "Please confirm the submission first."
	case ErrNotCompleted:
		return "The exam has not been submitted yet."
	case ErrInvalidAnswer:
		return "The answer is not one of the question's options."
	case ErrQuestionIndex:
		return "That question does not exist."
	case ErrLoadTimeout:
		return "Loading timed out. Please try again."
	case ErrStorage:
		return "Failed to save your exam. Please try again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
