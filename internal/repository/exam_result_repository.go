package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/store"
)

// StoredResult is a result together with the id of the document holding it.
type StoredResult struct {
	DocID  string
	Result model.ExamResult
}

// ExamResultRepository handles exam result documents.
type ExamResultRepository struct {
	docs store.DocumentStore
}

// NewExamResultRepository creates a new ExamResultRepository.
func NewExamResultRepository(docs store.DocumentStore) *ExamResultRepository {
	return &ExamResultRepository{docs: docs}
}

// GetByExamAndStudent reads the result at its composite key.
// Returns store.ErrNotFound when absent.
func (r *ExamResultRepository) GetByExamAndStudent(ctx context.Context, examID, studentID string) (*model.ExamResult, error) {
	var res model.ExamResult
	if err := r.docs.Get(ctx, config.CollectionResults, config.DocKey.ResultID(examID, studentID), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FindByExamAndStudent queries results by their examId/studentId fields.
// It finds records written under non-canonical ids as well.
func (r *ExamResultRepository) FindByExamAndStudent(ctx context.Context, examID, studentID string) ([]StoredResult, error) {
	docs, err := r.docs.Query(ctx, config.CollectionResults,
		store.Where("examId", examID),
		store.Where("studentId", studentID),
	)
	if err != nil {
		return nil, err
	}

	results := make([]StoredResult, 0, len(docs))
	for _, d := range docs {
		var res model.ExamResult
		if err := d.Decode(&res); err != nil {
			return nil, err
		}
		results = append(results, StoredResult{DocID: d.ID, Result: res})
	}
	return results, nil
}

// Create writes the result at its composite key, replacing any prior body.
func (r *ExamResultRepository) Create(ctx context.Context, res *model.ExamResult) error {
	return r.docs.Set(ctx, config.CollectionResults, config.DocKey.ResultID(res.ExamID, res.StudentID), res, store.SetOptions{})
}

// Delete removes a result document by id.
func (r *ExamResultRepository) Delete(ctx context.Context, docID string) error {
	return r.docs.Delete(ctx, config.CollectionResults, docID)
}

// DeleteAll removes the canonical result and every duplicate record for the
// exam/student pair. Returns the number of documents removed.
func (r *ExamResultRepository) DeleteAll(ctx context.Context, examID, studentID string) (int, error) {
	canonical := config.DocKey.ResultID(examID, studentID)
	ids := []string{canonical}

	dupes, err := r.FindByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return 0, fmt.Errorf("find duplicates: %w", err)
	}
	for _, d := range dupes {
		if d.DocID != canonical {
			ids = append(ids, d.DocID)
		}
	}

	var errs []error
	removed := 0
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
