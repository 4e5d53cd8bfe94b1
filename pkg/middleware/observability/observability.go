// Package observability provides structured request logging.
package observability

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// LoggingConfig holds logging middleware configuration
type LoggingConfig struct {
	LogRequests  bool
	LogResponses bool
	Level        slog.Level
	Fields       map[string]interface{}
	SkipPaths    map[string]bool
}

// LoggingMiddleware provides structured logging for HTTP requests
type LoggingMiddleware struct {
	logger *slog.Logger
	config LoggingConfig
	now    func() time.Time
}

// LoggingOption configures logging middleware
type LoggingOption func(*LoggingConfig)

// WithLogLevel sets the level for successful requests. Client errors log at
// warn and server errors at error regardless.
func WithLogLevel(level slog.Level) LoggingOption {
	return func(c *LoggingConfig) {
		c.Level = level
	}
}

// WithRequestLogging toggles the "request received" entry.
func WithRequestLogging(enabled bool) LoggingOption {
	return func(c *LoggingConfig) {
		c.LogRequests = enabled
	}
}

// WithLogFields sets additional fields to include in all log entries
func WithLogFields(fields map[string]interface{}) LoggingOption {
	return func(c *LoggingConfig) {
		c.Fields = fields
	}
}

// WithSkipPaths silences logging for the given paths, e.g. health probes.
func WithSkipPaths(paths ...string) LoggingOption {
	return func(c *LoggingConfig) {
		for _, p := range paths {
			c.SkipPaths[p] = true
		}
	}
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *slog.Logger, opts ...LoggingOption) *LoggingMiddleware {
	config := LoggingConfig{
		LogRequests:  false,
		LogResponses: true,
		Level:        slog.LevelInfo,
		Fields:       make(map[string]interface{}),
		SkipPaths:    make(map[string]bool),
	}

	for _, opt := range opts {
		opt(&config)
	}

	return &LoggingMiddleware{
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// GetConfig returns the logging configuration
func (m *LoggingMiddleware) GetConfig() LoggingConfig {
	return m.config
}

// HTTPMiddleware returns HTTP middleware function
func (m *LoggingMiddleware) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.config.SkipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := m.now()
			ctx := r.Context()

			if m.config.LogRequests {
				attrs := m.attrs(r,
					slog.String("event", "request_received"),
					slog.String("query", r.URL.RawQuery),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("user_agent", r.UserAgent()),
				)
				m.logger.LogAttrs(ctx, m.config.Level, "HTTP request received", attrs...)
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			if !m.config.LogResponses {
				return
			}

			attrs := m.attrs(r,
				slog.String("event", "request_completed"),
				slog.Int("status_code", rw.statusCode),
				slog.Int64("duration_ms", m.now().Sub(start).Milliseconds()),
				slog.Int("bytes", rw.bytes),
			)
			m.logger.LogAttrs(ctx, m.levelFor(rw.statusCode), "HTTP request completed", attrs...)
		})
	}
}

func (m *LoggingMiddleware) levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return m.config.Level
	}
}

func (m *LoggingMiddleware) attrs(r *http.Request, extra ...slog.Attr) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(extra)+len(m.config.Fields)+3)
	attrs = append(attrs,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	if id := chimw.GetReqID(r.Context()); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	attrs = append(attrs, extra...)

	for k, v := range m.config.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	return attrs
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	bytes       int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
