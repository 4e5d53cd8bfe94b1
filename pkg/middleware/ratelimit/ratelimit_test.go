package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucketRateLimiter(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewTokenBucketRateLimiter(3, time.Minute, WithClock(clock.Now))

	t.Run("burst up to capacity", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("a"), "request %d", i)
		}
		assert.False(t, limiter.Allow("a"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		assert.True(t, limiter.Allow("b"))
	})

	t.Run("refills per interval", func(t *testing.T) {
		clock.Advance(59 * time.Second)
		assert.False(t, limiter.Allow("a"))

		clock.Advance(time.Second)
		assert.True(t, limiter.Allow("a"))
		assert.False(t, limiter.Allow("a"))
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		clock.Advance(time.Hour)
		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("a"))
		}
		assert.False(t, limiter.Allow("a"))
	})
}

func TestTokenBucketRateLimiter_Config(t *testing.T) {
	config := NewTokenBucketRateLimiter(5, time.Second, WithRefillTokens(2)).GetConfig()

	assert.Equal(t, 5, config.Capacity)
	assert.Equal(t, time.Second, config.RefillInterval)
	assert.Equal(t, 2, config.RefillTokens)
}

func TestTokenBucketRateLimiter_Prune(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewTokenBucketRateLimiter(2, time.Minute, WithClock(clock.Now))

	limiter.Allow("idle")
	limiter.Allow("busy")
	limiter.Allow("busy")

	clock.Advance(time.Minute)
	assert.Equal(t, 1, limiter.Prune(), "only the bucket that refilled completely")

	clock.Advance(time.Minute)
	assert.Equal(t, 1, limiter.Prune())
	assert.Equal(t, 0, limiter.Prune())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "203.0.113.7:51234"
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestMiddleware_HTTPMiddleware(t *testing.T) {
	var denied []string
	m := NewRateLimitMiddleware(
		NewTokenBucketRateLimiter(1, time.Minute),
		WithRetryAfter(time.Minute),
		WithDeniedHook(func(_ *http.Request, key string) { denied = append(denied, key) }),
	)
	handler := m.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/signin", http.NoBody)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1:1000").Code)

	w := send("198.51.100.1:2000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`, w.Body.String())

	assert.Equal(t, http.StatusNoContent, send("198.51.100.2:1000").Code)

	assert.Equal(t, []string{"198.51.100.1"}, denied)
	assert.Equal(t, Metrics{TotalRequests: 3, AllowedRequests: 2, DeniedRequests: 1}, m.GetMetrics())
}

func TestMiddleware_KeyFunc(t *testing.T) {
	m := NewRateLimitMiddleware(NewTokenBucketRateLimiter(1, time.Hour),
		WithKeyFunc(func(r *http.Request) string { return r.FormValue("email") }))
	handler := m.HTTPMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/?email=a", http.NoBody))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/?email=b", http.NoBody))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
}
