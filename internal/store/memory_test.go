package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	ExamID    string   `json:"examId"`
	StudentID string   `json:"studentId"`
	Answers   []string `json:"answers,omitempty"`
	Score     int      `json:"score,omitempty"`
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	var d doc
	err := s.Get(context.Background(), "examResults", "nope", &d)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetReplaceAndMerge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "c", "1", doc{ExamID: "e", StudentID: "s", Score: 3}, SetOptions{}))

	// Merge keeps fields the update does not carry.
	require.NoError(t, s.Set(ctx, "c", "1", map[string]any{"answers": []string{"A"}}, Merge))
	var got doc
	require.NoError(t, s.Get(ctx, "c", "1", &got))
	assert.Equal(t, doc{ExamID: "e", StudentID: "s", Answers: []string{"A"}, Score: 3}, got)

	// A plain set replaces the whole body.
	require.NoError(t, s.Set(ctx, "c", "1", map[string]any{"examId": "x"}, SetOptions{}))
	got = doc{}
	require.NoError(t, s.Get(ctx, "c", "1", &got))
	assert.Equal(t, doc{ExamID: "x"}, got)
}

func TestMemoryStore_SetRejectsNonObject(t *testing.T) {
	s := NewMemoryStore()
	err := s.Set(context.Background(), "c", "1", []int{1, 2}, SetOptions{})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len("c"))
}

func TestMemoryStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "r", "e1_s1", doc{ExamID: "e1", StudentID: "s1"}, SetOptions{}))
	require.NoError(t, s.Set(ctx, "r", "legacy", doc{ExamID: "e1", StudentID: "s1"}, SetOptions{}))
	require.NoError(t, s.Set(ctx, "r", "e1_s2", doc{ExamID: "e1", StudentID: "s2"}, SetOptions{}))
	require.NoError(t, s.Set(ctx, "r", "e2_s1", doc{ExamID: "e2", StudentID: "s1"}, SetOptions{}))

	docs, err := s.Query(ctx, "r", Where("examId", "e1"), Where("studentId", "s1"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "e1_s1", docs[0].ID)
	assert.Equal(t, "legacy", docs[1].ID)

	var d doc
	require.NoError(t, docs[1].Decode(&d))
	assert.Equal(t, "s1", d.StudentID)

	all, err := s.Query(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.Query(ctx, "other", Where("examId", "e1"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_DeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Delete(ctx, "c", "missing"))
	require.NoError(t, s.Set(ctx, "c", "1", doc{ExamID: "e"}, SetOptions{}))
	require.NoError(t, s.Delete(ctx, "c", "1"))
	assert.Equal(t, 0, s.Len("c"))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Set(ctx, "c", "1", doc{}, SetOptions{}), context.Canceled)
}

func TestFieldsMatchesNormalizesJSON(t *testing.T) {
	f := fields{"n": []byte(` 3 `), "s": []byte(`"x"`)}
	ok, err := f.matches([]Filter{Where("n", 3), Where("s", "x")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.matches([]Filter{Where("missing", "x")})
	require.NoError(t, err)
	assert.False(t, ok)
}
