package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/identity"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/store"
	"github.com/stretchr/testify/require"
)

const (
	testExamID    = "exam-1"
	testStudentID = "student-1"
)

var (
	errStoreDown = errors.New("store unavailable")
	examEdited   = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

// op is one write recorded by recordingStore.
type op struct {
	Kind       string // "set" or "delete"
	Collection string
	ID         string
}

// recordingStore wraps a MemoryStore, records writes and injects failures.
type recordingStore struct {
	*store.MemoryStore

	mu   sync.Mutex
	ops  []op
	fail func(kind, collection string) error

	// gate, when set, blocks progress writes until it is closed. entered
	// receives a value each time a progress write reaches the gate.
	gate    chan struct{}
	entered chan struct{}
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *recordingStore) failWith(f func(kind, collection string) error) {
	s.mu.Lock()
	s.fail = f
	s.mu.Unlock()
}

func (s *recordingStore) check(kind, collection string) error {
	s.mu.Lock()
	f := s.fail
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f(kind, collection)
}

func (s *recordingStore) Get(ctx context.Context, collection, id string, dst any) error {
	if err := s.check("get", collection); err != nil {
		return err
	}
	return s.MemoryStore.Get(ctx, collection, id, dst)
}

func (s *recordingStore) Query(ctx context.Context, collection string, filters ...store.Filter) ([]store.Document, error) {
	if err := s.check("query", collection); err != nil {
		return nil, err
	}
	return s.MemoryStore.Query(ctx, collection, filters...)
}

func (s *recordingStore) Set(ctx context.Context, collection, id string, data any, opts store.SetOptions) error {
	if collection == config.CollectionProgress && s.gate != nil {
		s.entered <- struct{}{}
		<-s.gate
	}
	s.record("set", collection, id)
	if err := s.check("set", collection); err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, collection, id, data, opts)
}

func (s *recordingStore) Delete(ctx context.Context, collection, id string) error {
	s.record("delete", collection, id)
	if err := s.check("delete", collection); err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, collection, id)
}

func (s *recordingStore) record(kind, collection, id string) {
	s.mu.Lock()
	s.ops = append(s.ops, op{Kind: kind, Collection: collection, ID: id})
	s.mu.Unlock()
}

func (s *recordingStore) writes() []op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]op(nil), s.ops...)
}

func (s *recordingStore) count(kind, collection string) int {
	n := 0
	for _, o := range s.writes() {
		if o.Kind == kind && o.Collection == collection {
			n++
		}
	}
	return n
}

func (s *recordingStore) reset() {
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

// put seeds a document without recording it.
func (s *recordingStore) put(t *testing.T, collection, id string, data any) {
	t.Helper()
	require.NoError(t, s.MemoryStore.Set(context.Background(), collection, id, data, store.SetOptions{}))
}

type recordingNotifier struct {
	mu      sync.Mutex
	states  []View
	ticks   []int
	lowTime []int
}

func (n *recordingNotifier) StateChanged(v View) {
	n.mu.Lock()
	n.states = append(n.states, v)
	n.mu.Unlock()
}

func (n *recordingNotifier) Tick(left int) {
	n.mu.Lock()
	n.ticks = append(n.ticks, left)
	n.mu.Unlock()
}

func (n *recordingNotifier) LowTime(left int) error {
	n.mu.Lock()
	n.lowTime = append(n.lowTime, left)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) lowTimeCalls() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.lowTime...)
}

type recordingSync struct {
	mu      sync.Mutex
	results []*model.ExamResult
}

func (s *recordingSync) Enqueue(_ context.Context, r *model.ExamResult) error {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	return nil
}

func (s *recordingSync) queued() []*model.ExamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.ExamResult(nil), s.results...)
}

// clock advances one second on every call so consecutive snapshots are ordered.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: examEdited.Add(time.Hour)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// advance moves the clock forward, as if a slow store call were in flight.
func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testExam(n int) *model.ExamDefinition {
	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			Text:          fmt.Sprintf("Question %d", i+1),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
		}
	}
	return &model.ExamDefinition{
		ID:           testExamID,
		Title:        "Algebra",
		Class:        "10A",
		TeacherID:    "teacher-1",
		TimerMinutes: 1,
		Questions:    questions,
		UpdatedAt:    examEdited,
	}
}

type harness struct {
	docs   *recordingStore
	notify *recordingNotifier
	sync   *recordingSync
	clock  *clock
	cfg    config.SessionConfig
	user   identity.Provider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		docs:   newRecordingStore(),
		notify: &recordingNotifier{},
		sync:   &recordingSync{},
		clock:  newClock(),
		cfg: config.SessionConfig{
			LoadTimeout:        time.Second,
			TickInterval:       time.Millisecond,
			LowTimeThreshold:   30,
			SubmitRetryBackoff: 0,
		},
		user: identity.Static{User: model.User{ID: testStudentID, Role: model.RoleStudent}},
	}
	h.docs.put(t, config.CollectionExams, testExamID, testExam(5))
	return h
}

func (h *harness) controller(t *testing.T) *Controller {
	t.Helper()
	c := New(testExamID, h.cfg, Deps{
		Identity: h.user,
		Docs:     h.docs,
		Sync:     h.sync,
		Notifier: h.notify,
		Log:      zerolog.Nop(),
		Now:      h.clock.Now,
	})
	t.Cleanup(c.Close)
	return c
}

// loaded returns a controller after a successful Load with the write log cleared.
func (h *harness) loaded(t *testing.T) *Controller {
	t.Helper()
	c := h.controller(t)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func (h *harness) saveProgress(t *testing.T, p model.AttemptProgress) {
	t.Helper()
	h.docs.put(t, config.CollectionProgress, config.DocKey.ProgressID(p.StudentID, p.ExamID), p)
}

func (h *harness) savedProgress(t *testing.T) (*model.AttemptProgress, bool) {
	t.Helper()
	var p model.AttemptProgress
	err := h.docs.MemoryStore.Get(context.Background(), config.CollectionProgress,
		config.DocKey.ProgressID(testStudentID, testExamID), &p)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	return &p, true
}

func (h *harness) savedResult(t *testing.T) (*model.ExamResult, bool) {
	t.Helper()
	var r model.ExamResult
	err := h.docs.MemoryStore.Get(context.Background(), config.CollectionResults,
		config.DocKey.ResultID(testExamID, testStudentID), &r)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	return &r, true
}

func resumable(answers []string, index, left int) model.AttemptProgress {
	return model.AttemptProgress{
		ExamID:               testExamID,
		StudentID:            testStudentID,
		Answers:              answers,
		CurrentQuestionIndex: index,
		TimeLeftSeconds:      left,
		UpdatedAt:            examEdited.Add(time.Minute),
	}
}
