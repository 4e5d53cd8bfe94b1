// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// ErrPanic wraps every recovered panic value.
var ErrPanic = errors.New("panic recovered")

// PanicRecoveryConfig holds panic recovery configuration
type PanicRecoveryConfig struct {
	LogPanics         bool
	IncludeStackTrace bool
	StatusCode        int
	PanicHandler      func(interface{}) error
}

// PanicRecoveryMiddleware recovers panics raised by downstream handlers.
type PanicRecoveryMiddleware struct {
	logger *slog.Logger
	config PanicRecoveryConfig
}

// PanicRecoveryOption configures PanicRecoveryMiddleware.
type PanicRecoveryOption func(*PanicRecoveryConfig)

// WithPanicLogging enables or disables panic logging
func WithPanicLogging(enabled bool) PanicRecoveryOption {
	return func(c *PanicRecoveryConfig) {
		c.LogPanics = enabled
	}
}

// WithStackTrace enables or disables stack trace inclusion
func WithStackTrace(enabled bool) PanicRecoveryOption {
	return func(c *PanicRecoveryConfig) {
		c.IncludeStackTrace = enabled
	}
}

// WithRecoveryStatusCode sets the HTTP status code for recovered panics
func WithRecoveryStatusCode(statusCode int) PanicRecoveryOption {
	return func(c *PanicRecoveryConfig) {
		c.StatusCode = statusCode
	}
}

// WithPanicHandler sets a custom panic handler
func WithPanicHandler(handler func(interface{}) error) PanicRecoveryOption {
	return func(c *PanicRecoveryConfig) {
		c.PanicHandler = handler
	}
}

// NewPanicRecoveryMiddleware creates a new panic recovery middleware
func NewPanicRecoveryMiddleware(logger *slog.Logger, opts ...PanicRecoveryOption) *PanicRecoveryMiddleware {
	config := PanicRecoveryConfig{
		LogPanics:         true,
		IncludeStackTrace: true,
		StatusCode:        http.StatusInternalServerError,
	}

	for _, opt := range opts {
		opt(&config)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PanicRecoveryMiddleware{
		logger: logger,
		config: config,
	}
}

// GetConfig returns the panic recovery configuration
func (m *PanicRecoveryMiddleware) GetConfig() PanicRecoveryConfig {
	return m.config
}

// HTTPMiddleware returns HTTP middleware function
func (m *PanicRecoveryMiddleware) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				panicValue := recover()
				if panicValue == nil {
					return
				}
				// net/http uses this sentinel to abort a response on purpose.
				if panicValue == http.ErrAbortHandler {
					panic(panicValue)
				}
				m.handlePanic(w, r, panicValue)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// handlePanic handles a recovered panic
func (m *PanicRecoveryMiddleware) handlePanic(w http.ResponseWriter, r *http.Request, panicValue interface{}) {
	var err error
	if m.config.PanicHandler != nil {
		err = m.config.PanicHandler(panicValue)
	}
	if err == nil {
		err = fmt.Errorf("%w: %v", ErrPanic, panicValue)
	}

	if m.config.LogPanics {
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		}
		if m.config.IncludeStackTrace {
			attrs = append(attrs, "stack", string(debug.Stack()))
		}
		m.logger.ErrorContext(r.Context(), "panic recovered", attrs...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(m.config.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "Internal server error",
		"code":  "INTERNAL_ERROR",
	})
}
