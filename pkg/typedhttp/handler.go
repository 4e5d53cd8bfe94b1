package typedhttp

import (
	"context"
	"io"
	"net/http"
)

// Handler represents the core business logic interface (transport-agnostic).
type Handler[TRequest, TResponse any] interface {
	Handle(ctx context.Context, req TRequest) (TResponse, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[TRequest, TResponse any] func(ctx context.Context, req TRequest) (TResponse, error)

// Handle calls f.
func (f HandlerFunc[TRequest, TResponse]) Handle(ctx context.Context, req TRequest) (TResponse, error) {
	return f(ctx, req)
}

// RequestDecoder handles decoding HTTP requests into typed request objects.
type RequestDecoder[T any] interface {
	Decode(r *http.Request) (T, error)
	ContentTypes() []string
}

// ResponseEncoder handles encoding typed response objects into HTTP responses.
type ResponseEncoder[T any] interface {
	Encode(w http.ResponseWriter, data T, statusCode int) error
	ContentType() string
}

// ErrorMapper maps application errors to HTTP status codes and response bodies.
type ErrorMapper interface {
	MapError(err error) (statusCode int, response interface{})
}

// ErrorMapperFunc adapts a function to ErrorMapper.
type ErrorMapperFunc func(err error) (int, interface{})

// MapError calls f.
func (f ErrorMapperFunc) MapError(err error) (int, interface{}) {
	return f(err)
}

// StatusCoder is implemented by responses that pick their own status code.
type StatusCoder interface {
	StatusCode() int
}

// Redirector is implemented by responses that may answer with a redirect
// instead of a body. ok reports whether the redirect applies.
type Redirector interface {
	RedirectTo() (location string, ok bool)
}

// CookieSetter is implemented by responses that set or clear cookies.
type CookieSetter interface {
	Cookies() []*http.Cookie
}

// StreamingResponse represents a response that should be streamed to the client.
type StreamingResponse struct {
	ContentType string
	Filename    string
	Stream      io.Reader
	StatusCode  int
}

// Middleware represents HTTP middleware following the standard Go pattern.
type Middleware func(http.Handler) http.Handler

// HandlerOption allows configuration of HTTP handlers during registration.
type HandlerOption func(*HandlerConfig)

// HandlerConfig contains all configuration options for a typed handler.
type HandlerConfig struct {
	Decoder     interface{} // RequestDecoder[T]
	Encoder     interface{} // ResponseEncoder[T]
	ErrorMapper ErrorMapper
	Middleware  []Middleware
	Metadata    OpenAPIMetadata
}

// OpenAPIMetadata contains metadata for OpenAPI specification generation.
type OpenAPIMetadata struct {
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	// Hidden keeps the operation out of generated documents (HTML pages).
	Hidden bool `json:"-"`
	// Secured marks operations that require a bearer token.
	Secured bool `json:"-"`
}
