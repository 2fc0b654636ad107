package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/store"
)

const (
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
	RetryBackoff = 5 * time.Second
)

// errSuperseded marks a queued result that must not be written because a
// different final result already exists.
var errSuperseded = errors.New("result superseded")

// errResubmitted marks a queued result whose attempt was stored again by a
// session resumed from leftover progress: same answers, later timestamp.
var errResubmitted = errors.New("attempt already stored")

// RedisSyncQueue hands results that a session could not store to the
// SyncWorker through a Redis list.
type RedisSyncQueue struct {
	rdb redis.Cmdable
}

// NewRedisSyncQueue creates a new RedisSyncQueue.
func NewRedisSyncQueue(rdb redis.Cmdable) *RedisSyncQueue {
	return &RedisSyncQueue{rdb: rdb}
}

// Enqueue implements session.PendingSync.
func (q *RedisSyncQueue) Enqueue(ctx context.Context, result *model.ExamResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PendingResultsQueue, raw).Err()
}

// SyncWorker consumes pending_results_queue and writes each result to the
// document store, then removes the attempt's progress.
type SyncWorker struct {
	rdb      redis.Cmdable
	results  *repository.ExamResultRepository
	progress *repository.ExamProgressRepository
	log      zerolog.Logger
	backoff  time.Duration
}

// NewSyncWorker creates a new SyncWorker.
func NewSyncWorker(rdb redis.Cmdable, docs store.DocumentStore, log zerolog.Logger) *SyncWorker {
	return &SyncWorker{
		rdb:      rdb,
		results:  repository.NewExamResultRepository(docs),
		progress: repository.NewExamProgressRepository(docs),
		log:      log.With().Str("component", "sync_worker").Logger(),
		backoff:  RetryBackoff,
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SyncWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SyncWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout.
	item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PendingResultsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			sleep(ctx, time.Second)
		}
		return
	}
	if len(item) < 2 {
		return
	}

	if err := w.handle(ctx, item[1]); err != nil {
		// Push back to queue for retry.
		w.log.Error().Err(err).Msg("Result sync failed, retrying in 5s")
		if err := w.rdb.RPush(context.Background(), config.WorkerKey.PendingResultsQueue, item[1]).Err(); err != nil {
			w.log.Error().Err(err).Msg("Requeue failed, result lost")
		}
		sleep(ctx, w.backoff)
	}
}

// handle syncs one queued payload. Undecodable and superseded payloads are
// logged and dropped; only storage failures are returned for a retry.
func (w *SyncWorker) handle(ctx context.Context, raw string) error {
	var res model.ExamResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return nil
	}
	if res.ExamID == "" || res.StudentID == "" {
		w.log.Error().Msg("Payload without exam or student id")
		return nil
	}

	err := w.sync(ctx, &res)
	if errors.Is(err, errResubmitted) {
		w.log.Info().
			Str("exam_id", res.ExamID).
			Str("student_id", res.StudentID).
			Msg("Queued attempt already stored by a resumed session, dropping")
		return nil
	}
	if errors.Is(err, errSuperseded) {
		w.log.Warn().
			Str("exam_id", res.ExamID).
			Str("student_id", res.StudentID).
			Msg("Queued result superseded by a stored one, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	w.log.Info().
		Str("exam_id", res.ExamID).
		Str("student_id", res.StudentID).
		Int("score", res.Score).
		Msg("Pending result synced")
	return nil
}

// sync writes res unless another final result is already stored.
func (w *SyncWorker) sync(ctx context.Context, res *model.ExamResult) error {
	existing, err := w.results.GetByExamAndStudent(ctx, res.ExamID, res.StudentID)
	switch {
	case err == nil && existing.SubmittedAt.Equal(res.SubmittedAt):
		// Already written by an earlier try.
	case err == nil && !existing.RetakeAllowed && slices.Equal(existing.Answers, res.Answers):
		return errResubmitted
	case err == nil && !existing.RetakeAllowed:
		return errSuperseded
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("check result: %w", err)
	default:
		if err := w.results.Create(ctx, res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	if err := w.progress.Delete(ctx, res.StudentID, res.ExamID); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// drain processes all remaining items in the queue before shutdown.
func (w *SyncWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PendingResultsQueue).Result()
		if err != nil {
			break
		}

		if err := w.handle(ctx, raw); err != nil {
			w.log.Error().Err(err).Msg("Drain sync error")
			w.rdb.RPush(ctx, config.WorkerKey.PendingResultsQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
