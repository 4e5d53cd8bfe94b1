// Package testutil provides request builders and an in-process client for
// testing HTTP handlers with explicit error handling and context support.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Request represents an HTTP request with all necessary data.
// Form takes precedence over Body when both are set.
type Request struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     map[string]string
	Cookies     map[string]string
	Form        url.Values
	Body        interface{}
}

// Response represents an HTTP response as recorded by the client.
type Response struct {
	StatusCode int
	Headers    http.Header
	Cookies    []*http.Cookie
	Raw        []byte
}

// Cookie returns the last cookie named name set by the response, or nil.
func (r *Response) Cookie(name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range r.Cookies {
		if c.Name == name {
			found = c
		}
	}

	return found
}

// Location returns the redirect target, if any.
func (r *Response) Location() string {
	return r.Headers.Get("Location")
}

// TypedResponse wraps Response with typed data for when type safety is needed.
type TypedResponse[T any] struct {
	*Response
	Data T
}

// HTTPClient defines the main client interface for HTTP testing.
type HTTPClient interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// RequestError provides context-aware error handling for HTTP requests.
type RequestError struct {
	Method string
	Path   string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRequestError checks if an error is a RequestError.
func IsRequestError(err error) bool {
	var reqErr *RequestError

	return errors.As(err, &reqErr)
}
