//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/store"
)

// These tests run against a live server started with STORE_DRIVER=postgres
// and the same JWT_SECRET, DATABASE_URL and REDIS_URL.

const (
	defaultBaseURL = "http://localhost:8080"
	examID         = "e2e-exam"
	studentID      = "e2e-student"
)

var (
	baseURL string
	docs    store.DocumentStore
	auth    *service.AuthService
	rdb     *redis.Client
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Printf("db connect: %v\n", err)
		os.Exit(1)
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		fmt.Printf("redis url: %v\n", err)
		os.Exit(1)
	}
	rdb = redis.NewClient(opt)

	docs = store.NewPostgresStore(pool)
	auth = service.NewAuthService(cfg, rdb)

	if err := seed(ctx); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	pool.Close()
	rdb.Close()
	os.Exit(code)
}

// seed resets the e2e student's records and stores a two-question exam.
func seed(ctx context.Context) error {
	if _, err := repository.NewExamResultRepository(docs).DeleteAll(ctx, examID, studentID); err != nil {
		return fmt.Errorf("cleanup results: %w", err)
	}
	if err := repository.NewExamProgressRepository(docs).Delete(ctx, studentID, examID); err != nil {
		return fmt.Errorf("cleanup progress: %w", err)
	}

	exam := &model.ExamDefinition{
		ID:           examID,
		Title:        "E2E Exam",
		Class:        "XII-A",
		TimerMinutes: 5,
		UpdatedAt:    time.Now().UTC(),
		Questions: []model.Question{
			{Text: "2 + 2", Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4"},
			{Text: "H2O is", Options: []string{"Salt", "Water", "Air", "Iron"}, CorrectAnswer: "Water"},
		},
	}
	if err := repository.NewExamRepository(docs).Save(ctx, exam); err != nil {
		return fmt.Errorf("seed exam: %w", err)
	}
	return nil
}

func issueToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	if err := auth.ResetSession(ctx, studentID); err != nil {
		t.Fatalf("reset session: %v", err)
	}
	token, err := auth.GenerateToken(ctx, studentID, model.RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

type event struct {
	Event   string          `json:"event"`
	Code    string          `json:"code"`
	State   json.RawMessage `json:"state"`
	Outcome struct {
		Score          int `json:"score"`
		TotalQuestions int `json:"total_questions"`
	} `json:"outcome"`
}

type stateView struct {
	Phase   string   `json:"phase"`
	Answers []string `json:"answers"`
}

func TestE2EFlow(t *testing.T) {
	token := issueToken(t)

	// Step 1: Take the exam over the stream
	t.Run("TakeExam", func(t *testing.T) {
		conn := dial(t, token)
		defer conn.Close()

		st := nextState(t, conn)
		if st.Phase != "running" {
			t.Fatalf("expected running, got %s", st.Phase)
		}

		sendAction(t, conn, `{"action":"answer","index":0,"value":"4"}`)
		sendAction(t, conn, `{"action":"answer","index":1,"value":"Air"}`)
		sendAction(t, conn, `{"action":"submit"}`)
		sendAction(t, conn, `{"action":"confirm_submit"}`)

		ev := waitFor(t, conn, "graded")
		if ev.Outcome.Score != 1 || ev.Outcome.TotalQuestions != 2 {
			t.Fatalf("expected 1/2, got %d/%d", ev.Outcome.Score, ev.Outcome.TotalQuestions)
		}

		sendAction(t, conn, `{"action":"acknowledge"}`)
		waitFor(t, conn, "redirect")
	})

	// Step 2: Result is stored and withheld until approved
	t.Run("ResultWithheld", func(t *testing.T) {
		resp, err := get(fmt.Sprintf("/api/v1/student/exams/%s/result", examID), token)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data model.ResultSummary `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Approved || body.Data.Score != 0 || body.Data.TotalQuestions != 2 {
			t.Errorf("unexpected summary: %+v", body.Data)
		}
	})

	// Step 3: Reopening the exam is blocked
	t.Run("ReopenBlocked", func(t *testing.T) {
		conn := dial(t, token)
		defer conn.Close()

		st := nextState(t, conn)
		if st.Phase != "blocked" {
			t.Fatalf("expected blocked, got %s", st.Phase)
		}
	})

	// Step 4: A superseded token is rejected
	t.Run("SingleDevice", func(t *testing.T) {
		_ = issueToken(t)

		resp, err := get(fmt.Sprintf("/api/v1/student/exams/%s/result", examID), token)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d: %s", resp.StatusCode, readBody(resp))
		}
	})
}

// Helpers

func dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(baseURL, "http") +
		fmt.Sprintf("/ws/v1/student/exams/%s/stream?token=%s", examID, url.QueryEscape(token))
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial failed: %v (status %d: %s)", err, resp.StatusCode, readBody(resp))
		}
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func sendAction(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitFor reads events until one of the given kind arrives. Error events fail the test.
func waitFor(t *testing.T, conn *websocket.Conn, kind string) event {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read %s: %v", kind, err)
		}
		if ev.Event == "error" {
			t.Fatalf("unexpected error event: %s", ev.Code)
		}
		if ev.Event == kind {
			return ev
		}
	}
}

func nextState(t *testing.T, conn *websocket.Conn) stateView {
	t.Helper()
	ev := waitFor(t, conn, "state")
	var st stateView
	if err := json.Unmarshal(ev.State, &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func get(path string, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
