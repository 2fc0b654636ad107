package repository

import (
	"context"

	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/store"
)

// ExamRepository reads exam definitions.
type ExamRepository struct {
	docs store.DocumentStore
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(docs store.DocumentStore) *ExamRepository {
	return &ExamRepository{docs: docs}
}

// GetByID retrieves an exam definition. Returns store.ErrNotFound when absent.
func (r *ExamRepository) GetByID(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	var exam model.ExamDefinition
	if err := r.docs.Get(ctx, config.CollectionExams, config.DocKey.ExamID(examID), &exam); err != nil {
		return nil, err
	}
	if exam.ID == "" {
		exam.ID = examID
	}
	return &exam, nil
}

// Save writes an exam definition (used by the seeding tool).
func (r *ExamRepository) Save(ctx context.Context, exam *model.ExamDefinition) error {
	return r.docs.Set(ctx, config.CollectionExams, config.DocKey.ExamID(exam.ID), exam, store.SetOptions{})
}
