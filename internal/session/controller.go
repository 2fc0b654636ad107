// Package session runs a single student's attempt at an exam: it resolves
// identity and saved state, keeps the countdown, autosaves progress and
// writes the final result exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/identity"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/store"
	"github.com/stemsi/exam-portal/internal/validator"
)

// PendingSync receives results that could not be stored during an automatic
// submission, for a later retry outside the session.
type PendingSync interface {
	Enqueue(ctx context.Context, result *model.ExamResult) error
}

// Notifier is told about state changes and clock events. Calls are made
// outside the controller's lock and must not block for long.
type Notifier interface {
	StateChanged(v View)
	Tick(secondsLeft int)
	// LowTime fires once when the remaining time reaches the warning
	// threshold. Errors are logged and otherwise ignored.
	LowTime(secondsLeft int) error
}

// Deps are the collaborators a Controller talks to.
type Deps struct {
	Identity identity.Provider
	Docs     store.DocumentStore
	Sync     PendingSync
	Notifier Notifier
	Log      zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns the state machine of one attempt.
type Controller struct {
	examID   string
	cfg      config.SessionConfig
	ident    identity.Provider
	exams    *repository.ExamRepository
	results  *repository.ExamResultRepository
	progress *repository.ExamProgressRepository
	sync     PendingSync
	notify   Notifier
	log      zerolog.Logger
	now      func() time.Time
	saver    *persister

	life   context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	exam      *model.ExamDefinition
	paper     *model.ExamPaper
	studentID string
	answers   []string
	index     int
	timeLeft  int
	// retake sessions do not autosave until the student answers or navigates.
	retake         bool
	diverged       bool
	warned         bool
	confirmPending bool
	lastErr        error
	closed         bool
}

// New creates a Controller for examID in the Loading state.
func New(examID string, cfg config.SessionConfig, deps Deps) *Controller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	life, cancel := context.WithCancel(context.Background())

	c := &Controller{
		examID:   examID,
		cfg:      cfg,
		ident:    deps.Identity,
		exams:    repository.NewExamRepository(deps.Docs),
		results:  repository.NewExamResultRepository(deps.Docs),
		progress: repository.NewExamProgressRepository(deps.Docs),
		sync:     deps.Sync,
		notify:   deps.Notifier,
		log:      deps.Log.With().Str("component", "session").Str("exam_id", examID).Logger(),
		now:      now,
		life:     life,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    Loading{},
	}
	c.saver = newPersister(c.progress.Save, c.log)
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StudentID returns the confirmed student, empty before a successful Load.
func (c *Controller) StudentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentID
}

// ExamID returns the exam the session was created for.
func (c *Controller) ExamID() string {
	return c.examID
}

// Done is closed once the session is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Load confirms the identity, fetches the exam and reconciles any previous
// result or saved progress. On success the session is Active or Blocked;
// otherwise it is Failed and the error is returned.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if _, ok := c.state.(Loading); !ok || c.closed {
		c.mu.Unlock()
		return ErrAlreadyLoaded
	}
	c.mu.Unlock()

	if c.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.LoadTimeout)
		defer cancel()
	}

	err := c.load(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrLoadTimeout, err)
		}
		c.log.Warn().Err(err).Msg("Session load failed")
		c.setState(Failed{Err: err})
		return err
	}
	return nil
}

func (c *Controller) load(ctx context.Context) error {
	user, err := c.ident.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if !user.CanTakeExam() {
		return fmt.Errorf("%w: role %q", ErrAuthorization, user.Role)
	}
	c.log = c.log.With().Str("student_id", user.ID).Logger()

	exam, err := c.exams.GetByID(ctx, c.examID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return persistence("load exam", err)
	}
	if fields := validator.Exam(exam); fields != nil {
		c.log.Error().Interface("fields", fields).Msg("Exam definition failed validation")
		return ErrInvalidExam
	}

	return c.reconcile(ctx, exam, user.ID)
}

// reconcile decides between Blocked, a retake, a resumed attempt and a fresh one.
func (c *Controller) reconcile(ctx context.Context, exam *model.ExamDefinition, studentID string) error {
	existing, canRetake, err := c.lookupResult(ctx, exam.ID, studentID)
	if err != nil {
		return err
	}

	if existing != nil && !canRetake {
		c.mu.Lock()
		c.exam, c.studentID = exam, studentID
		c.mu.Unlock()
		c.log.Info().Msg("Exam already taken, no retake allowed")
		c.setState(Blocked{Summary: existing.Summary()})
		return nil
	}

	if existing != nil {
		removed, err := c.results.DeleteAll(ctx, exam.ID, studentID)
		if err != nil {
			return persistence("clear previous result", err)
		}
		if err := c.progress.Delete(ctx, studentID, exam.ID); err != nil {
			return persistence("clear progress", err)
		}
		c.log.Info().Int("removed", removed).Msg("Retake allowed, previous result cleared")
		c.start(exam, model.FreshProgress(exam, studentID), true, false)
		return nil
	}

	saved, err := c.progress.Get(ctx, studentID, exam.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.start(exam, model.FreshProgress(exam, studentID), false, true)
		return nil
	case err != nil:
		return persistence("load progress", err)
	}

	if err := checkProgress(exam, saved); err != nil {
		c.log.Info().Err(err).Msg("Discarding saved progress")
		if err := c.progress.Delete(ctx, studentID, exam.ID); err != nil {
			return persistence("discard stale progress", err)
		}
		c.start(exam, model.FreshProgress(exam, studentID), false, true)
		return nil
	}

	c.log.Info().
		Int("question", saved.CurrentQuestionIndex).
		Int("time_left", saved.TimeLeftSeconds).
		Msg("Resuming saved progress")
	c.start(exam, *saved, false, false)
	return nil
}

// lookupResult finds an existing result, falling back to a field query for
// records not stored under the composite id.
func (c *Controller) lookupResult(ctx context.Context, examID, studentID string) (*model.ExamResult, bool, error) {
	res, err := c.results.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		return res, res.RetakeAllowed, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, persistence("load result", err)
	}

	found, err := c.results.FindByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, false, persistence("query results", err)
	}
	if len(found) == 0 {
		return nil, false, nil
	}
	canRetake := false
	for _, r := range found {
		if r.Result.RetakeAllowed {
			canRetake = true
		}
	}
	return &found[0].Result, canRetake, nil
}

// checkProgress returns errStaleProgress when saved cannot be resumed.
func checkProgress(exam *model.ExamDefinition, saved *model.AttemptProgress) error {
	if exam.UpdatedAt.After(saved.UpdatedAt) {
		return fmt.Errorf("%w: exam updated at %s after progress saved at %s",
			errStaleProgress, exam.UpdatedAt.Format(time.RFC3339), saved.UpdatedAt.Format(time.RFC3339))
	}
	if !saved.FitsExam(exam) {
		return fmt.Errorf("%w: progress does not fit the exam", errStaleProgress)
	}
	return nil
}

// start enters Active with p as the attempt state.
func (c *Controller) start(exam *model.ExamDefinition, p model.AttemptProgress, retake, persistNow bool) {
	paper := exam.Paper()

	c.mu.Lock()
	c.exam = exam
	c.paper = &paper
	c.studentID = p.StudentID
	c.answers = append([]string(nil), p.Answers...)
	c.index = p.CurrentQuestionIndex
	c.timeLeft = p.TimeLeftSeconds
	c.retake = retake
	c.warned = false
	c.state = Active{}
	if persistNow {
		c.scheduleSaveLocked()
	}
	c.mu.Unlock()

	c.emitState()
}

// Close abandons the session. Pending autosaves are dropped, not flushed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.saver.Close()
	c.cancel()
	close(c.done)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.emitState()
}

func (c *Controller) emitState() {
	if c.notify == nil {
		return
	}
	c.notify.StateChanged(c.View())
}

// progressLocked snapshots the attempt. c.mu must be held.
func (c *Controller) progressLocked() model.AttemptProgress {
	return model.AttemptProgress{
		ExamID:               c.exam.ID,
		StudentID:            c.studentID,
		Answers:              append([]string(nil), c.answers...),
		CurrentQuestionIndex: c.index,
		TimeLeftSeconds:      c.timeLeft,
		UpdatedAt:            c.now(),
	}
}

// scheduleSaveLocked queues an autosave of the current attempt. c.mu must be held.
func (c *Controller) scheduleSaveLocked() {
	if c.retake && !c.diverged {
		return
	}
	c.saver.Schedule(c.progressLocked())
}
