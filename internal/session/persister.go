package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// saveTimeout bounds a single progress write.
const saveTimeout = 10 * time.Second

type saveFunc func(ctx context.Context, p *model.AttemptProgress) error

// persister writes progress snapshots for one session in the background.
// Only the newest pending snapshot is kept and at most one write is in
// flight, so writes for the session never overlap and the last one always
// carries the latest state.
type persister struct {
	save saveFunc
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	idle    *sync.Cond
	pending *model.AttemptProgress
	writing bool
	sealed  bool
	closed  bool
}

func newPersister(save saveFunc, log zerolog.Logger) *persister {
	ctx, cancel := context.WithCancel(context.Background())
	p := &persister{
		save:   save,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	p.idle = sync.NewCond(&p.mu)
	go p.loop()
	return p
}

// Schedule queues snap, replacing any snapshot not yet written.
// Ignored while sealed.
func (p *persister) Schedule(snap model.AttemptProgress) {
	p.mu.Lock()
	if p.sealed || p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = &snap
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Seal drops the pending snapshot, refuses new ones and waits until the
// write in flight, if any, has returned.
func (p *persister) Seal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealed = true
	p.pending = nil
	for p.writing {
		p.idle.Wait()
	}
}

// Reopen accepts snapshots again after a Seal.
func (p *persister) Reopen() {
	p.mu.Lock()
	p.sealed = false
	p.mu.Unlock()
}

// Close abandons pending work without flushing and stops the loop.
func (p *persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.pending = nil
	p.mu.Unlock()

	p.cancel()
	<-p.done
}

func (p *persister) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
		for p.writeNext() {
		}
	}
}

// writeNext writes the pending snapshot. Returns false when there was none.
func (p *persister) writeNext() bool {
	p.mu.Lock()
	if p.pending == nil || p.sealed || p.closed {
		p.mu.Unlock()
		return false
	}
	snap := p.pending
	p.pending = nil
	p.writing = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(p.ctx, saveTimeout)
	err := p.save(ctx, snap)
	cancel()

	p.mu.Lock()
	p.writing = false
	p.idle.Broadcast()
	p.mu.Unlock()

	if err != nil {
		// Autosave failures are not fatal; the next snapshot supersedes this one.
		p.log.Warn().Err(err).
			Int("time_left", snap.TimeLeftSeconds).
			Msg("Progress autosave failed")
	}
	return true
}
