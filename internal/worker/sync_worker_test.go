package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*store.MemoryStore
	err error
}

func (s *failingStore) Set(ctx context.Context, collection, id string, data any, opts store.SetOptions) error {
	if s.err != nil {
		return s.err
	}
	return s.MemoryStore.Set(ctx, collection, id, data, opts)
}

func pendingResult() *model.ExamResult {
	return &model.ExamResult{
		ExamID:         "exam-1",
		StudentID:      "stu-1",
		Answers:        []string{"A", "B"},
		Score:          1,
		TotalQuestions: 2,
		SubmittedAt:    time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func encode(t *testing.T, r *model.ExamResult) string {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	return string(raw)
}

func newTestWorker(docs store.DocumentStore) *SyncWorker {
	return NewSyncWorker(nil, docs, zerolog.Nop())
}

func TestSyncWorker_WritesResultAndClearsProgress(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryStore()
	progress := repository.NewExamProgressRepository(docs)
	require.NoError(t, progress.Save(ctx, &model.AttemptProgress{ExamID: "exam-1", StudentID: "stu-1", TimeLeftSeconds: 3}))

	w := newTestWorker(docs)
	require.NoError(t, w.handle(ctx, encode(t, pendingResult())))
	// A second delivery of the same payload is a no-op.
	require.NoError(t, w.handle(ctx, encode(t, pendingResult())))

	got, err := repository.NewExamResultRepository(docs).GetByExamAndStudent(ctx, "exam-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
	assert.Equal(t, []string{"A", "B"}, got.Answers)

	_, err = progress.Get(ctx, "stu-1", "exam-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncWorker_DoesNotOverwriteOtherResult(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryStore()
	results := repository.NewExamResultRepository(docs)
	stored := pendingResult()
	stored.Answers = []string{"B", "B"}
	stored.Score = 2
	stored.SubmittedAt = stored.SubmittedAt.Add(time.Minute)
	require.NoError(t, results.Create(ctx, stored))

	w := newTestWorker(docs)
	assert.ErrorIs(t, w.sync(ctx, pendingResult()), errSuperseded)
	require.NoError(t, w.handle(ctx, encode(t, pendingResult())))

	got, err := results.GetByExamAndStudent(ctx, "exam-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Score)
}

func TestSyncWorker_SameAttemptStoredByResumedSession(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryStore()
	results := repository.NewExamResultRepository(docs)
	resubmitted := pendingResult()
	resubmitted.SubmittedAt = resubmitted.SubmittedAt.Add(30 * time.Second)
	require.NoError(t, results.Create(ctx, resubmitted))

	w := newTestWorker(docs)
	assert.ErrorIs(t, w.sync(ctx, pendingResult()), errResubmitted)
	require.NoError(t, w.handle(ctx, encode(t, pendingResult())))

	got, err := results.GetByExamAndStudent(ctx, "exam-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, resubmitted.SubmittedAt.Equal(got.SubmittedAt))
	assert.Equal(t, []string{"A", "B"}, got.Answers)
}

func TestSyncWorker_ReplacesRetakeableResult(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryStore()
	results := repository.NewExamResultRepository(docs)
	old := pendingResult()
	old.Score = 0
	old.RetakeAllowed = true
	old.SubmittedAt = old.SubmittedAt.Add(-time.Hour)
	require.NoError(t, results.Create(ctx, old))

	require.NoError(t, newTestWorker(docs).handle(ctx, encode(t, pendingResult())))

	got, err := results.GetByExamAndStudent(ctx, "exam-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Score)
	assert.False(t, got.RetakeAllowed)
}

func TestSyncWorker_DropsBadPayloads(t *testing.T) {
	docs := store.NewMemoryStore()
	w := newTestWorker(docs)

	assert.NoError(t, w.handle(context.Background(), "{not json"))
	assert.NoError(t, w.handle(context.Background(), `{"examId":"exam-1"}`))
	assert.Zero(t, docs.Len("examResults"))
}

func TestSyncWorker_StorageFailureIsRetried(t *testing.T) {
	errDown := errors.New("down")
	docs := &failingStore{MemoryStore: store.NewMemoryStore(), err: errDown}

	err := newTestWorker(docs).handle(context.Background(), encode(t, pendingResult()))

	assert.ErrorIs(t, err, errDown)
}
