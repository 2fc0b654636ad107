package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/identity"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/session"
	"github.com/stemsi/exam-portal/internal/validator"
	ws "github.com/stemsi/exam-portal/internal/websocket"
)

const (
	// outboxSize bounds the events queued for one connection.
	outboxSize = 64
	// sendWait is how long a state event may wait for room in the outbox.
	sendWait = time.Second
)

var errNotDelivered = errors.New("event not delivered")

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the exam stream: one session controller per connection.
type WSHandler struct {
	verifier       identity.Verifier
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(verifier identity.Verifier, sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		verifier:       verifier,
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream?token=...
// Upgrades to WebSocket and runs the exam session for the connection.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	var params examParams
	if fields := validator.BindURI(c, &params); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token := middleware.GetToken(c)
	if token == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().Str("exam_id", params.ExamID).Logger()
	out := newOutbox(wsLog)
	writerDone := make(chan struct{})
	go func() {
		out.run(conn)
		close(writerDone)
	}()
	defer func() {
		out.stop()
		<-writerDone
		conn.Close()
	}()

	ctrl, err := h.sessionService.Open(c.Request.Context(), params.ExamID, identity.NewTokenProvider(h.verifier, token), out)
	defer ctrl.Close()
	if err != nil {
		out.closeWith(websocket.CloseNormalClosure, string(sessionErrCode(err)))
		if service.IsLoadError(err) {
			wsLog.Info().Err(err).Msg("Session not started")
		} else {
			wsLog.Error().Err(err).Msg("Session load failed")
		}
		return
	}

	wsLog = wsLog.With().Str("student_id", ctrl.StudentID()).Logger()
	wsLog.Info().Str("phase", string(ctrl.View().Phase)).Msg("Student connected")

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(runCtx)

	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if fields := validator.Struct(req); fields != nil {
			out.send(ws.NewError(req.Action, string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload)))
			continue
		}

		if done := h.dispatch(ctrl, out, wsLog, req); done {
			return
		}
	}
}

// dispatch applies one client action. It returns true when the stream should end.
func (h *WSHandler) dispatch(ctrl *session.Controller, out *outbox, log zerolog.Logger, req ws.Request) bool {
	var err error
	switch req.Action {
	case ws.ActionPing:
		out.send(ws.PongResponse{Event: ws.EventPong})
		return false

	case ws.ActionAnswer:
		if req.Index == nil {
			out.send(ws.NewError(req.Action, string(response.ErrInvalidPayload), "index is required"))
			return false
		}
		err = ctrl.Answer(*req.Index, req.Value)
	case ws.ActionNext:
		err = ctrl.Next()
	case ws.ActionPrevious:
		err = ctrl.Previous()
	case ws.ActionGoto:
		if req.Index == nil {
			out.send(ws.NewError(req.Action, string(response.ErrInvalidPayload), "index is required"))
			return false
		}
		err = ctrl.Goto(*req.Index)

	case ws.ActionPause:
		err = ctrl.Pause()
	case ws.ActionResume:
		err = ctrl.Resume()
	case ws.ActionTogglePause:
		err = ctrl.TogglePause()
	case ws.ActionSubmit:
		err = ctrl.RequestSubmit()
	case ws.ActionCancelSubmit:
		err = ctrl.CancelSubmit()

	case ws.ActionConfirmSubmit:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		outcome, submitErr := ctrl.ConfirmSubmit(ctx)
		cancel()
		if submitErr != nil {
			h.sendError(out, log, req.Action, submitErr)
			return false
		}
		// graded follows from the Completed state event.
		log.Debug().Int("score", outcome.Score).Msg("Submission confirmed")
		return false

	case ws.ActionAcknowledge:
		redirect, ackErr := ctrl.Acknowledge()
		if ackErr != nil {
			h.sendError(out, log, req.Action, ackErr)
			return false
		}
		out.send(ws.AcknowledgedResponse{Event: ws.EventRedirect, Redirect: redirect})
		out.closeWith(websocket.CloseNormalClosure, "acknowledged")
		return true

	default:
		log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		out.send(ws.NewError(req.Action, string(response.ErrUnknownAction), "unknown action: "+string(req.Action)))
		return false
	}

	if err != nil {
		h.sendError(out, log, req.Action, err)
		return false
	}

	// Answers and navigation do not change the phase, so the controller does
	// not announce them; echo the new snapshot.
	switch req.Action {
	case ws.ActionAnswer, ws.ActionNext, ws.ActionPrevious, ws.ActionGoto:
		out.send(ws.StateResponse{Event: ws.EventState, State: ctrl.View()})
	}
	return false
}

func (h *WSHandler) sendError(out *outbox, log zerolog.Logger, action ws.Action, err error) {
	code := sessionErrCode(err)
	if code == response.ErrStorage || code == response.ErrInternal {
		log.Error().Err(err).Str("action", string(action)).Msg("Action failed")
	}
	out.send(ws.NewError(action, string(code), response.GetMessage(code)))
}

// sessionErrCode maps controller errors to API error codes.
func sessionErrCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrAuth):
		return response.ErrAuthRequired
	case errors.Is(err, session.ErrAuthorization):
		return response.ErrForbidden
	case errors.Is(err, session.ErrNotFound):
		return response.ErrExamNotFound
	case errors.Is(err, session.ErrInvalidExam):
		return response.ErrExamInvalid
	case errors.Is(err, session.ErrLoadTimeout):
		return response.ErrLoadTimeout
	case errors.Is(err, session.ErrAlreadyTaken):
		return response.ErrExamAlreadyTaken
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrAlreadyLoaded):
		return response.ErrExamNotActive
	case errors.Is(err, session.ErrPaused):
		return response.ErrExamPaused
	case errors.Is(err, session.ErrSubmitInProgress):
		return response.ErrSubmitInProgress
	case errors.Is(err, session.ErrAlreadySubmitted):
		return response.ErrAlreadySubmitted
	case errors.Is(err, session.ErrConfirmationRequired):
		return response.ErrConfirmationRequired
	case errors.Is(err, session.ErrNotCompleted):
		return response.ErrNotCompleted
	case errors.Is(err, session.ErrInvalidAnswer):
		return response.ErrInvalidAnswer
	case errors.Is(err, session.ErrQuestionIndex):
		return response.ErrQuestionIndex
	case session.IsPersistence(err):
		return response.ErrStorage
	default:
		return response.ErrInternal
	}
}

// outbox is the session notifier of one connection. A single writer
// goroutine owns the socket; everything else queues through the outbox.
type outbox struct {
	events   chan interface{}
	quit     chan struct{}
	stopOnce sync.Once
	log      zerolog.Logger

	mu          sync.Mutex
	closeCode   int
	closeReason string
	graded      bool
}

func newOutbox(log zerolog.Logger) *outbox {
	return &outbox{
		events:    make(chan interface{}, outboxSize),
		quit:      make(chan struct{}),
		log:       log,
		closeCode: websocket.CloseGoingAway,
	}
}

// StateChanged also sends graded once when the session completes, whether
// the student confirmed or the timer ran out.
func (o *outbox) StateChanged(v session.View) {
	o.send(ws.StateResponse{Event: ws.EventState, State: v})
	if v.Phase != session.PhaseCompleted || v.Outcome == nil {
		return
	}
	o.mu.Lock()
	first := !o.graded
	o.graded = true
	o.mu.Unlock()
	if first {
		o.send(ws.GradedResponse{Event: ws.EventGraded, Outcome: *v.Outcome})
	}
}

// Tick events are dropped rather than waited for when the client is slow.
func (o *outbox) Tick(secondsLeft int) {
	o.push(ws.TickResponse{Event: ws.EventTick, SecondsLeft: secondsLeft}, 0)
}

func (o *outbox) LowTime(secondsLeft int) error {
	ok := o.push(ws.LowTimeResponse{
		Event:       ws.EventLowTime,
		SecondsLeft: secondsLeft,
		Message:     fmt.Sprintf("Only %d seconds remaining!", secondsLeft),
	}, sendWait)
	if !ok {
		return errNotDelivered
	}
	return nil
}

func (o *outbox) send(v interface{}) {
	if !o.push(v, sendWait) {
		o.log.Warn().Msg("Outbound event dropped")
	}
}

func (o *outbox) push(v interface{}, wait time.Duration) bool {
	select {
	case <-o.quit:
		return false
	default:
	}
	select {
	case o.events <- v:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case o.events <- v:
		return true
	case <-o.quit:
		return false
	case <-t.C:
		return false
	}
}

// closeWith sets the close frame sent when the outbox stops.
func (o *outbox) closeWith(code int, reason string) {
	o.mu.Lock()
	o.closeCode, o.closeReason = code, reason
	o.mu.Unlock()
}

func (o *outbox) stop() {
	o.stopOnce.Do(func() { close(o.quit) })
}

// run writes queued events until stop, then flushes what is left and sends
// the close frame.
func (o *outbox) run(conn *websocket.Conn) {
	for {
		select {
		case v := <-o.events:
			if err := ws.WriteTyped(conn, v); err != nil {
				o.log.Debug().Err(err).Msg("Write failed, closing connection")
				// Unblocks the reader.
				conn.Close()
				o.stop()
				return
			}
		case <-o.quit:
			o.flush(conn)
			return
		}
	}
}

func (o *outbox) flush(conn *websocket.Conn) {
	for {
		select {
		case v := <-o.events:
			if err := ws.WriteTyped(conn, v); err != nil {
				return
			}
		default:
			o.mu.Lock()
			code, reason := o.closeCode, o.closeReason
			o.mu.Unlock()
			_ = ws.WriteClose(conn, code, reason)
			return
		}
	}
}
