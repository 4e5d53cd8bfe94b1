// Package ratelimit throttles requests per client key with token buckets.
package ratelimit

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Common errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// RateLimiter interface defines the contract for rate limiting implementations
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	capacity     int
	tokens       int
	refillTokens int
	lastRefill   time.Time
	interval     time.Duration
}

// TokenBucketConfig holds token bucket configuration
type TokenBucketConfig struct {
	Capacity       int
	RefillInterval time.Duration
	RefillTokens   int
}

// TokenBucketRateLimiter implements token bucket rate limiting
type TokenBucketRateLimiter struct {
	config  TokenBucketConfig
	buckets map[string]*TokenBucket
	now     func() time.Time
	mu      sync.Mutex
}

// TokenBucketOption configures token bucket rate limiter
type TokenBucketOption func(*TokenBucketRateLimiter)

// WithRefillTokens sets the number of tokens to refill per interval
func WithRefillTokens(tokens int) TokenBucketOption {
	return func(r *TokenBucketRateLimiter) {
		r.config.RefillTokens = tokens
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenBucketOption {
	return func(r *TokenBucketRateLimiter) {
		r.now = now
	}
}

// NewTokenBucketRateLimiter creates a new token bucket rate limiter
func NewTokenBucketRateLimiter(capacity int, refillInterval time.Duration, opts ...TokenBucketOption) *TokenBucketRateLimiter {
	r := &TokenBucketRateLimiter{
		config: TokenBucketConfig{
			Capacity:       capacity,
			RefillInterval: refillInterval,
			RefillTokens:   1,
		},
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GetConfig returns the rate limiter configuration
func (r *TokenBucketRateLimiter) GetConfig() TokenBucketConfig {
	return r.config
}

// Allow checks if a request should be allowed
func (r *TokenBucketRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	bucket, exists := r.buckets[key]
	if !exists {
		bucket = &TokenBucket{
			capacity:     r.config.Capacity,
			tokens:       r.config.Capacity,
			refillTokens: r.config.RefillTokens,
			lastRefill:   now,
			interval:     r.config.RefillInterval,
		}
		r.buckets[key] = bucket
	}

	return bucket.consume(now)
}

// Prune drops buckets that have been idle long enough to be full again.
func (r *TokenBucketRateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, b := range r.buckets {
		b.refill(now)
		if b.tokens >= b.capacity {
			delete(r.buckets, key)
			removed++
		}
	}

	return removed
}

func (b *TokenBucket) refill(now time.Time) {
	if b.interval <= 0 {
		b.tokens = b.capacity
		return
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}

	intervals := int(elapsed / b.interval)
	b.tokens = min(b.capacity, b.tokens+intervals*b.refillTokens)
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * b.interval)
}

// consume tries to consume a token from the bucket
func (b *TokenBucket) consume(now time.Time) bool {
	b.refill(now)

	if b.tokens > 0 {
		b.tokens--

		return true
	}

	return false
}

// KeyFunc derives the bucket key for a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys by the host part of RemoteAddr. Run it behind a real-IP
// middleware when the server sits behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// Middleware provides rate limiting middleware
type Middleware struct {
	limiter    RateLimiter
	keyFunc    KeyFunc
	retryAfter time.Duration
	onDenied   func(r *http.Request, key string)

	mu      sync.Mutex
	metrics Metrics
}

// Option configures rate limit middleware
type Option func(*Middleware)

// WithKeyFunc overrides ClientIP.
func WithKeyFunc(fn KeyFunc) Option {
	return func(m *Middleware) {
		m.keyFunc = fn
	}
}

// WithRetryAfter sets the Retry-After hint sent with 429 responses.
func WithRetryAfter(d time.Duration) Option {
	return func(m *Middleware) {
		m.retryAfter = d
	}
}

// WithDeniedHook is called for every rejected request.
func WithDeniedHook(fn func(r *http.Request, key string)) Option {
	return func(m *Middleware) {
		m.onDenied = fn
	}
}

// Metrics holds rate limiting metrics
type Metrics struct {
	TotalRequests   int64
	AllowedRequests int64
	DeniedRequests  int64
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter RateLimiter, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		keyFunc: ClientIP,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// HTTPMiddleware returns HTTP middleware function
func (m *Middleware) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := m.keyFunc(r)
			allowed := m.limiter.Allow(key)

			m.mu.Lock()
			m.metrics.TotalRequests++
			if allowed {
				m.metrics.AllowedRequests++
			} else {
				m.metrics.DeniedRequests++
			}
			m.mu.Unlock()

			if !allowed {
				if m.onDenied != nil {
					m.onDenied(r, key)
				}
				m.writeRateLimitError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetMetrics returns a snapshot of the counters.
func (m *Middleware) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.metrics
}

// writeRateLimitError writes a rate limit exceeded error response
func (m *Middleware) writeRateLimitError(w http.ResponseWriter) {
	if m.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(m.retryAfter.Round(time.Second)/time.Second)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": ErrRateLimitExceeded.Error(),
		"code":  "RATE_LIMITED",
	})
}
