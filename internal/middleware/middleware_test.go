package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}, nil)
}

func protectedRouter(auth *service.AuthService) *gin.Engine {
	r := gin.New()
	r.GET("/me", RequireStudentJWT(auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetClaims(c).UserID, "token": GetToken(c)})
	})
	return r
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestRequireStudentJWT(t *testing.T) {
	auth := newAuth()
	student, err := auth.SignToken("stu-1", model.RoleStudent, "j1", time.Now())
	require.NoError(t, err)
	teacher, err := auth.SignToken("t-1", model.RoleTeacher, "j2", time.Now())
	require.NoError(t, err)
	expired, err := auth.SignToken("stu-1", model.RoleStudent, "j3", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		status int
		code   response.ErrCode
	}{
		{name: "header", header: "Bearer " + student, status: http.StatusOK},
		{name: "query", query: student, status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized, code: response.ErrTokenInvalid},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized, code: response.ErrTokenExpired},
		{name: "teacher", header: "Bearer " + teacher, status: http.StatusForbidden, code: response.ErrStudentAccessOnly},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			url := "/me"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			protectedRouter(auth).ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, errCode(t, w))
				return
			}
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "stu-1", body["user"])
			assert.Equal(t, student, body["token"])
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "buckets are per client")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.GET("/stream", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/stream", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, response.ErrRateLimitExceeded, errCode(t, second))
}
