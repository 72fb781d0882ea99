package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newAuthRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", handler, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})
	return r
}

func TestUserAuth(t *testing.T) {
	r := newAuthRouter(UserAuth())

	t.Run("valid header passes and resolves the user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("X-User-ID", "42")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":42`)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("zero and garbage rejected", func(t *testing.T) {
		for _, value := range []string{"0", "-1", "abc", "4294967296000"} {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("X-User-ID", value)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code, "value %q", value)
		}
	})
}

func TestSchedulerAuth(t *testing.T) {
	t.Run("closed when no secret configured", func(t *testing.T) {
		t.Setenv("SCHEDULER_SECRET", "")
		r := newAuthRouter(SchedulerAuth())

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("X-Scheduler-Secret", "anything")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("matching secret passes", func(t *testing.T) {
		t.Setenv("SCHEDULER_SECRET", "s3cret")
		r := newAuthRouter(SchedulerAuth())

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("X-Scheduler-Secret", "s3cret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		t.Setenv("SCHEDULER_SECRET", "s3cret")
		r := newAuthRouter(SchedulerAuth())

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("X-Scheduler-Secret", "wrong")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := newAuthRouter(RateLimiterMiddleware(RateLimiterConfig{RequestsPerSecond: 1, Burst: 2}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	// The burst admits the first two, the third exceeds it.
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// A different client gets its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
