package session

import (
	"context"
	"errors"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/store"
)

// errTakenElsewhere is returned by writeResult when the checkpoint finds a
// result this session did not write.
var errTakenElsewhere = errors.New("result written by another session")

// ConfirmSubmit performs a manual submission after RequestSubmit. On a
// storage failure the session returns to Active with its answers intact and
// the error is returned so the student can retry. The time spent on the
// failed write is taken off the countdown; if none is left the attempt is
// submitted automatically instead.
func (c *Controller) ConfirmSubmit(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !c.confirmPending {
		c.mu.Unlock()
		return nil, ErrConfirmationRequired
	}
	c.mu.Unlock()
	return c.submit(ctx, false)
}

// autoSubmit is the timeout path. Its outcome is delivered through the
// notifier and View.
func (c *Controller) autoSubmit() {
	if _, err := c.submit(c.life, true); err != nil &&
		!errors.Is(err, ErrSubmitInProgress) && !errors.Is(err, ErrAlreadySubmitted) {
		c.log.Warn().Err(err).Msg("Automatic submission ended without a result")
	}
}

// submit runs at most once per attempt: the first caller moves the session
// to Submitting, every concurrent caller gets ErrSubmitInProgress.
func (c *Controller) submit(ctx context.Context, auto bool) (*Outcome, error) {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	wasPaused := c.state.(Active).Paused
	started := c.now()
	c.state = Submitting{Auto: auto}
	c.confirmPending = false
	c.lastErr = nil
	exam := c.exam
	result := &model.ExamResult{
		ExamID:         exam.ID,
		StudentID:      c.studentID,
		Answers:        append([]string(nil), c.answers...),
		Score:          Score(exam.Questions, c.answers),
		TotalQuestions: len(exam.Questions),
		SubmittedAt:    started,
		Class:          exam.Class,
		TeacherID:      exam.TeacherID,
	}
	c.mu.Unlock()
	c.emitState()

	// No progress write may land once the result write begins.
	c.saver.Seal()

	err := c.writeResult(ctx, result)
	if errors.Is(err, errTakenElsewhere) {
		return nil, c.blockTaken(result)
	}

	if err != nil && !auto && c.expireDuring(started) {
		// The clock ran out while the manual write was failing.
		c.log.Warn().Err(err).Msg("Time ran out during a failed submission, submitting automatically")
		auto = true
		ctx = c.life
	}

	if err != nil && auto {
		c.log.Warn().Err(err).Dur("backoff", c.cfg.SubmitRetryBackoff).Msg("Automatic submission failed, retrying")
		if sleepErr := sleep(ctx, c.cfg.SubmitRetryBackoff); sleepErr == nil {
			err = c.writeResult(ctx, result)
			if errors.Is(err, errTakenElsewhere) {
				return nil, c.blockTaken(result)
			}
		}
		if err != nil {
			return c.completePending(result, err), nil
		}
	}

	if err != nil {
		c.log.Warn().Err(err).Msg("Manual submission failed")
		c.mu.Lock()
		c.state = Active{Paused: wasPaused}
		c.lastErr = err
		c.saver.Reopen()
		c.scheduleSaveLocked()
		c.mu.Unlock()
		c.emitState()
		return nil, err
	}

	return c.complete(result, false, msgSubmitted), nil
}

// expireDuring charges the whole seconds spent since started against the
// countdown, which does not tick while Submitting. When nothing is left the
// session becomes an automatic submission and true is returned.
func (c *Controller) expireDuring(started time.Time) bool {
	elapsed := int(c.now().Sub(started) / time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed > 0 {
		c.timeLeft -= elapsed
		if c.timeLeft < 0 {
			c.timeLeft = 0
		}
	}
	if c.timeLeft > 0 {
		return false
	}
	c.state = Submitting{Auto: true}
	return true
}

// writeResult stores the result and removes the progress document. It
// re-reads the result first so a result written by another session is not
// overwritten.
func (c *Controller) writeResult(ctx context.Context, result *model.ExamResult) error {
	existing, err := c.results.GetByExamAndStudent(ctx, result.ExamID, result.StudentID)
	switch {
	case err == nil && existing.SubmittedAt.Equal(result.SubmittedAt):
		// An earlier try of this same write reached the store.
	case err == nil && !existing.RetakeAllowed:
		return errTakenElsewhere
	default:
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			c.log.Debug().Err(err).Msg("Result checkpoint read failed")
		}
		if err := c.results.Create(ctx, result); err != nil {
			return persistence("write result", err)
		}
	}

	// The result is durable; a leftover progress document is ignored on the
	// next load because the result is checked first.
	if err := c.progress.Delete(ctx, result.StudentID, result.ExamID); err != nil {
		c.log.Warn().Err(err).Msg("Progress not removed after submission")
	}
	return nil
}

func (c *Controller) complete(result *model.ExamResult, pending bool, msg string) *Outcome {
	out := Outcome{
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		Percentage:     model.Percentage(result.Score, result.TotalQuestions),
		SubmittedAt:    result.SubmittedAt,
		SyncPending:    pending,
		Message:        msg,
		Note:           msgPending,
	}
	c.mu.Lock()
	if s, ok := c.state.(Submitting); ok {
		out.Auto = s.Auto
	}
	c.state = Completed{Outcome: out}
	c.mu.Unlock()

	c.log.Info().
		Int("score", out.Score).
		Int("total", out.TotalQuestions).
		Bool("auto", out.Auto).
		Bool("sync_pending", pending).
		Msg("Exam submitted and graded")
	c.emitState()
	return &out
}

// completePending finishes an automatic submission whose write failed twice.
// The student still sees the locally computed score.
func (c *Controller) completePending(result *model.ExamResult, cause error) *Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if c.sync != nil {
		if err := c.sync.Enqueue(ctx, result); err != nil {
			c.log.Error().Err(err).Msg("Queueing result for sync failed")
		}
	}
	// A leftover snapshot would let a reload resume and submit the attempt again.
	if err := c.progress.Delete(ctx, result.StudentID, result.ExamID); err != nil {
		c.log.Warn().Err(err).Msg("Progress not removed, a reload may resume the attempt")
	}
	c.log.Error().Err(cause).Msg("Automatic submission not stored, sync pending")
	return c.complete(result, true, msgSyncPending)
}

func (c *Controller) blockTaken(result *model.ExamResult) error {
	existing, err := c.results.GetByExamAndStudent(context.Background(), result.ExamID, result.StudentID)
	summary := model.ResultSummary{ExamID: result.ExamID, TotalQuestions: result.TotalQuestions}
	if err == nil {
		summary = existing.Summary()
	}
	c.log.Warn().Msg("Result already present at submission, not overwriting")
	c.setState(Blocked{Summary: summary})
	return ErrAlreadyTaken
}

// Acknowledge closes a completed session and returns where to go next.
func (c *Controller) Acknowledge() (Redirect, error) {
	c.mu.Lock()
	done, ok := c.state.(Completed)
	c.mu.Unlock()
	if !ok {
		return Redirect{}, ErrNotCompleted
	}
	c.Close()
	return Redirect{Route: RouteDashboard, Notification: done.Outcome.Message}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
