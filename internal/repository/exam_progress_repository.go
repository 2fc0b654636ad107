package repository

import (
	"context"

	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/store"
)

// ExamProgressRepository handles in-flight attempt snapshots.
type ExamProgressRepository struct {
	docs store.DocumentStore
}

// NewExamProgressRepository creates a new ExamProgressRepository.
func NewExamProgressRepository(docs store.DocumentStore) *ExamProgressRepository {
	return &ExamProgressRepository{docs: docs}
}

// Get reads the saved progress. Returns store.ErrNotFound when absent.
func (r *ExamProgressRepository) Get(ctx context.Context, studentID, examID string) (*model.AttemptProgress, error) {
	var p model.AttemptProgress
	if err := r.docs.Get(ctx, config.CollectionProgress, config.DocKey.ProgressID(studentID, examID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save merge-writes the progress snapshot.
func (r *ExamProgressRepository) Save(ctx context.Context, p *model.AttemptProgress) error {
	return r.docs.Set(ctx, config.CollectionProgress, config.DocKey.ProgressID(p.StudentID, p.ExamID), p, store.Merge)
}

// Delete removes the progress snapshot.
func (r *ExamProgressRepository) Delete(ctx context.Context, studentID, examID string) error {
	return r.docs.Delete(ctx, config.CollectionProgress, config.DocKey.ProgressID(studentID, examID))
}
