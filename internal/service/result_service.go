package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/store"
)

// ErrResultNotFound is returned when the student has no result for the exam.
var ErrResultNotFound = errors.New("result not found")

// ResultService reads submitted results for the student dashboard.
type ResultService struct {
	results *repository.ExamResultRepository
}

// NewResultService creates a new ResultService.
func NewResultService(results *repository.ExamResultRepository) *ResultService {
	return &ResultService{results: results}
}

// Summary returns the student's result for examID. Records stored under a
// non-canonical id are found through the field query.
func (s *ResultService) Summary(ctx context.Context, examID, studentID string) (*model.ResultSummary, error) {
	res, err := s.results.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		sum := res.Summary()
		return &sum, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get result: %w", err)
	}

	found, err := s.results.FindByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrResultNotFound
	}
	sum := found[0].Result.Summary()
	return &sum, nil
}
