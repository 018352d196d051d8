package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsBurstThenRejects(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("user:p1")
	assert.True(t, ok)
	ok, _ = l.Allow("user:p1")
	assert.True(t, ok)
	ok, retry := l.Allow("user:p1")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	ok, _ = l.Allow("user:p2")
	assert.True(t, ok, "buckets are per key")

	now = now.Add(time.Second)
	ok, _ = l.Allow("user:p1")
	assert.True(t, ok, "token refills after one second")
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(2 * time.Minute)
	l.Allow("b")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, hasA := l.buckets["a"]
	assert.False(t, hasA)
	assert.Len(t, l.buckets, 1)
}

func TestMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(0.001, 1, time.Minute)
	router := gin.New()
	router.POST("/pay", l.Middleware(func(c *gin.Context) string { return "user:p1" }), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pay", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pay", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}
