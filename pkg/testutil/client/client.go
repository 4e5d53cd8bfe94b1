// Package client provides a context-aware in-process client for testing
// HTTP handlers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pavelpascari/ordermanager/pkg/testutil"
)

// Client implements testutil.HTTPClient by serving requests through an
// http.Handler with an httptest.ResponseRecorder.
type Client struct {
	handler http.Handler
	baseURL string
	timeout time.Duration

	keepCookies bool
	mu          sync.Mutex
	jar         map[string]string
}

// Option configures a Client using the functional options pattern.
type Option func(*Client)

// WithTimeout sets the default timeout for requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithBaseURL sets the URL prefix for requests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithCookieJar makes the client remember cookies set by responses and send
// them with later requests, like a browser would.
func WithCookieJar() Option {
	return func(c *Client) {
		c.keepCookies = true
	}
}

// NewClient creates a new context-aware HTTP client for testing.
func NewClient(handler http.Handler, opts ...Option) *Client {
	client := &Client{
		handler: handler,
		baseURL: "http://example.com",
		timeout: testutil.DefaultTimeout,
		jar:     make(map[string]string),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Execute performs an HTTP request with explicit error handling and context support.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func (c *Client) Execute(ctx context.Context, req testutil.Request) (*testutil.Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, &testutil.RequestError{
			Method: req.Method,
			Path:   req.Path,
			Err:    fmt.Errorf("building HTTP request: %w", err),
		}
	}

	resp, err := c.executeHTTPRequest(httpReq)
	if err != nil {
		return nil, &testutil.RequestError{
			Method: req.Method,
			Path:   req.Path,
			Err:    fmt.Errorf("executing HTTP request: %w", err),
		}
	}

	return resp, nil
}

// ExecuteTyped performs a request and decodes a JSON response body into T.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func ExecuteTyped[T any](ctx context.Context, c *Client, req testutil.Request) (*testutil.TypedResponse[T], error) {
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	var data T
	if len(resp.Raw) > 0 && strings.Contains(resp.Headers.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(resp.Raw, &data); err != nil {
			return nil, &testutil.RequestError{
				Method: req.Method,
				Path:   req.Path,
				Err:    fmt.Errorf("unmarshaling JSON response: %w", err),
			}
		}
	}

	return &testutil.TypedResponse[T]{
		Response: resp,
		Data:     data,
	}, nil
}

// Cookie returns the value the jar holds for name.
func (c *Client) Cookie(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.jar[name]
	return v, ok
}

//nolint:gocritic // Request struct size is acceptable for this usage
func (c *Client) buildHTTPRequest(ctx context.Context, req testutil.Request) (*http.Request, error) {
	body, contentType, err := buildRequestBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+buildRequestPath(req), body)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for key, value := range req.Headers {
		if key == testutil.RemoteAddrHeader {
			httpReq.RemoteAddr = value
			continue
		}
		httpReq.Header.Set(key, value)
	}

	for name, value := range c.cookies(req.Cookies) {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	return httpReq, nil
}

// cookies merges the jar with the request's explicit cookies, which win.
func (c *Client) cookies(explicit map[string]string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(map[string]string, len(c.jar)+len(explicit))
	for k, v := range c.jar {
		merged[k] = v
	}
	for k, v := range explicit {
		merged[k] = v
	}

	return merged
}

//nolint:gocritic // Request struct size is acceptable for this usage
func buildRequestPath(req testutil.Request) string {
	if len(req.QueryParams) == 0 {
		return req.Path
	}

	values := url.Values{}
	for key, value := range req.QueryParams {
		values.Set(key, value)
	}

	return req.Path + "?" + values.Encode()
}

//nolint:gocritic // Request struct size is acceptable for this usage
func buildRequestBody(req testutil.Request) (io.Reader, string, error) {
	if req.Form != nil {
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	}

	if req.Body == nil {
		return http.NoBody, "", nil
	}

	if raw, ok := req.Body.(string); ok {
		return strings.NewReader(raw), "application/json", nil
	}

	jsonData, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("marshaling request body to JSON: %w", err)
	}

	return bytes.NewReader(jsonData), "application/json", nil
}

func (c *Client) executeHTTPRequest(req *http.Request) (*testutil.Response, error) {
	recorder := httptest.NewRecorder()
	c.handler.ServeHTTP(recorder, req)

	result := recorder.Result()
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	cookies := result.Cookies()
	if c.keepCookies {
		c.remember(cookies)
	}

	return &testutil.Response{
		StatusCode: result.StatusCode,
		Headers:    result.Header,
		Cookies:    cookies,
		Raw:        body,
	}, nil
}

func (c *Client) remember(cookies []*http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cookie := range cookies {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(c.jar, cookie.Name)
			continue
		}
		c.jar[cookie.Name] = cookie.Value
	}
}
