package session

import (
	"context"
	"time"
)

// Run drives the countdown until ctx is canceled, the session is closed or
// it leaves the Active states. A resumed attempt with no time left is
// submitted immediately.
func (c *Controller) Run(ctx context.Context) {
	if c.expiredOnResume() {
		c.autoSubmit()
		return
	}

	interval := c.cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.Tick()
			if c.finished() {
				return
			}
		}
	}
}

func (c *Controller) expiredOnResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, active := c.state.(Active)
	return active && c.timeLeft == 0
}

// finished reports whether the countdown has nothing left to do.
func (c *Controller) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state.(type) {
	case Active, Submitting:
		return false
	}
	return true
}

// Tick advances the countdown by one second. It does nothing unless the
// session is running. Reaching zero submits automatically.
func (c *Controller) Tick() {
	c.mu.Lock()
	a, ok := c.state.(Active)
	if !ok || a.Paused || c.timeLeft <= 0 || c.closed {
		c.mu.Unlock()
		return
	}
	c.timeLeft--
	left := c.timeLeft
	warn := false
	if !c.warned && left > 0 && left <= c.cfg.LowTimeThreshold {
		c.warned = true
		warn = true
	}
	if left > 0 {
		c.scheduleSaveLocked()
	}
	c.mu.Unlock()

	if c.notify != nil {
		c.notify.Tick(left)
		if warn {
			if err := c.notify.LowTime(left); err != nil {
				c.log.Debug().Err(err).Msg("Low time warning not delivered")
			}
		}
	}

	if left == 0 {
		c.autoSubmit()
	}
}

// Answer records value for question index. An empty value clears it.
func (c *Controller) Answer(index int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(c.exam.Questions) {
		return ErrQuestionIndex
	}
	if value != "" && !c.exam.Questions[index].HasOption(value) {
		return ErrInvalidAnswer
	}
	if c.answers[index] == value {
		return nil
	}
	c.answers[index] = value
	c.diverged = true
	c.scheduleSaveLocked()
	return nil
}

// Next moves to the following question; it stays put on the last one.
func (c *Controller) Next() error {
	return c.move(func(i, n int) (int, error) {
		if i < n-1 {
			return i + 1, nil
		}
		return i, nil
	})
}

// Previous moves to the preceding question; it stays put on the first one.
func (c *Controller) Previous() error {
	return c.move(func(i, _ int) (int, error) {
		if i > 0 {
			return i - 1, nil
		}
		return i, nil
	})
}

// Goto jumps to question index.
func (c *Controller) Goto(index int) error {
	return c.move(func(i, n int) (int, error) {
		if index < 0 || index >= n {
			return i, ErrQuestionIndex
		}
		return index, nil
	})
}

func (c *Controller) move(next func(i, n int) (int, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.activeLocked(); err != nil {
		return err
	}
	to, err := next(c.index, len(c.exam.Questions))
	if err != nil {
		return err
	}
	if to == c.index {
		return nil
	}
	c.index = to
	c.diverged = true
	c.scheduleSaveLocked()
	return nil
}

// Pause freezes the countdown.
func (c *Controller) Pause() error {
	return c.setPaused(func(bool) bool { return true })
}

// Resume restarts the countdown.
func (c *Controller) Resume() error {
	return c.setPaused(func(bool) bool { return false })
}

// TogglePause flips between running and paused.
func (c *Controller) TogglePause() error {
	return c.setPaused(func(p bool) bool { return !p })
}

func (c *Controller) setPaused(next func(bool) bool) error {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	a := c.state.(Active)
	paused := next(a.Paused)
	changed := paused != a.Paused
	c.state = Active{Paused: paused}
	if paused {
		c.confirmPending = false
	}
	c.mu.Unlock()

	if changed {
		c.emitState()
	}
	return nil
}

// RequestSubmit asks for confirmation of a manual submission.
func (c *Controller) RequestSubmit() error {
	c.mu.Lock()
	if err := c.runningLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.confirmPending = true
	c.mu.Unlock()

	c.emitState()
	return nil
}

// CancelSubmit dismisses a pending confirmation.
func (c *Controller) CancelSubmit() error {
	c.mu.Lock()
	if err := c.activeLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.confirmPending = false
	c.mu.Unlock()

	c.emitState()
	return nil
}

// activeLocked maps the current state to the error an action outside
// Active gets. c.mu must be held.
func (c *Controller) activeLocked() error {
	if c.closed {
		return ErrNotActive
	}
	switch c.state.(type) {
	case Active:
		return nil
	case Submitting:
		return ErrSubmitInProgress
	case Completed:
		return ErrAlreadySubmitted
	case Blocked:
		return ErrAlreadyTaken
	default:
		return ErrNotActive
	}
}

// runningLocked is activeLocked that also rejects a paused session.
func (c *Controller) runningLocked() error {
	if err := c.activeLocked(); err != nil {
		return err
	}
	if c.state.(Active).Paused {
		return ErrPaused
	}
	return nil
}
