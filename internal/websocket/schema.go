package websocket

import (
	"github.com/stemsi/exam-portal/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer        Action = "answer"
	ActionNext          Action = "next"
	ActionPrevious      Action = "previous"
	ActionGoto          Action = "goto"
	ActionPause         Action = "pause"
	ActionResume        Action = "resume"
	ActionTogglePause   Action = "toggle_pause"
	ActionSubmit        Action = "submit"
	ActionCancelSubmit  Action = "cancel_submit"
	ActionConfirmSubmit Action = "confirm_submit"
	ActionAcknowledge   Action = "acknowledge"
	ActionPing          Action = "ping"
)

// Request is every client message. Index and Value are only read by the
// actions that take them.
type Request struct {
	Action Action `json:"action" validate:"required"`
	Index  *int   `json:"index,omitempty" validate:"omitempty,min=0"`
	Value  string `json:"value,omitempty" validate:"max=1024"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState   Event = "state"
	EventTick    Event = "tick"
	EventLowTime Event = "low_time"
	EventGraded  Event = "graded"
	EventError   Event = "error"
	EventPong    Event = "pong"
	// EventRedirect follows a successful acknowledge; the stream then closes.
	EventRedirect Event = "redirect"
)

// StateResponse carries a full session snapshot.
type StateResponse struct {
	Event Event        `json:"event"`
	State session.View `json:"state"`
}

// TickResponse is sent every second while the countdown runs.
type TickResponse struct {
	Event       Event `json:"event"`
	SecondsLeft int   `json:"seconds_left"`
}

// LowTimeResponse warns that the attempt is about to run out of time.
type LowTimeResponse struct {
	Event       Event  `json:"event"`
	SecondsLeft int    `json:"seconds_left"`
	Message     string `json:"message"`
}

// GradedResponse is sent once an attempt is graded, after confirm_submit
// or when the timer runs out.
type GradedResponse struct {
	Event   Event           `json:"event"`
	Outcome session.Outcome `json:"outcome"`
}

// AcknowledgedResponse tells the client where to navigate after completion.
type AcknowledgedResponse struct {
	Event    Event            `json:"event"`
	Redirect session.Redirect `json:"redirect"`
}

type ErrorResponse struct {
	Event  Event  `json:"event"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Action Action `json:"action,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
