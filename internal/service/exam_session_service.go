package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/identity"
	"github.com/stemsi/exam-portal/internal/session"
	"github.com/stemsi/exam-portal/internal/store"
)

// ExamSessionService builds exam session controllers and keeps track of the
// ones currently open.
type ExamSessionService struct {
	docs store.DocumentStore
	sync session.PendingSync
	cfg  config.SessionConfig
	log  zerolog.Logger

	mu   sync.Mutex
	open map[sessionKey]int
}

type sessionKey struct {
	examID    string
	studentID string
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(docs store.DocumentStore, pending session.PendingSync, cfg config.SessionConfig, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		docs: docs,
		sync: pending,
		cfg:  cfg,
		log:  log,
		open: make(map[sessionKey]int),
	}
}

// Open creates a controller for examID acting as the user behind ident and
// loads it. The controller is returned even when Load fails so the caller
// can show its error view; it is Failed in that case.
func (s *ExamSessionService) Open(ctx context.Context, examID string, ident identity.Provider, notify session.Notifier) (*session.Controller, error) {
	c := session.New(examID, s.cfg, session.Deps{
		Identity: ident,
		Docs:     s.docs,
		Sync:     s.sync,
		Notifier: notify,
		Log:      s.log,
	})
	if err := c.Load(ctx); err != nil {
		return c, err
	}
	s.track(c)
	return c, nil
}

// track registers c until it is closed. Two open sessions for the same
// attempt race each other's autosaves; that is only logged.
func (s *ExamSessionService) track(c *session.Controller) {
	key := sessionKey{examID: c.ExamID(), studentID: c.StudentID()}

	s.mu.Lock()
	s.open[key]++
	n := s.open[key]
	s.mu.Unlock()

	if n > 1 {
		s.log.Warn().
			Str("exam_id", key.examID).
			Str("student_id", key.studentID).
			Int("open", n).
			Msg("Exam opened in more than one session")
	}

	go func() {
		<-c.Done()
		s.mu.Lock()
		if s.open[key]--; s.open[key] <= 0 {
			delete(s.open, key)
		}
		s.mu.Unlock()
	}()
}

// OpenCount returns how many sessions are open for the exam/student pair.
func (s *ExamSessionService) OpenCount(examID, studentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[sessionKey{examID: examID, studentID: studentID}]
}

// IsLoadError reports whether err from Open should be shown to the student
// rather than treated as a server fault.
func IsLoadError(err error) bool {
	return errors.Is(err, session.ErrAuth) ||
		errors.Is(err, session.ErrAuthorization) ||
		errors.Is(err, session.ErrNotFound) ||
		errors.Is(err, session.ErrInvalidExam) ||
		errors.Is(err, session.ErrLoadTimeout)
}
