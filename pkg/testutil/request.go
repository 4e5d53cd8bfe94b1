package testutil

import (
	"net/http"
	"net/url"
)

// Helper functions for common request patterns following Go's preference
// for explicit, readable code over method chaining.

// GET creates a GET request with the specified path.
func GET(path string) Request {
	return Request{Method: http.MethodGet, Path: path}
}

// POST creates a POST request with the specified path and JSON body.
func POST(path string, body interface{}) Request {
	return Request{Method: http.MethodPost, Path: path, Body: body}
}

// PostForm creates a urlencoded form POST.
func PostForm(path string, form url.Values) Request {
	return Request{Method: http.MethodPost, Path: path, Form: form}
}

// Request modifiers that return new Request instances (functional approach)

// WithAuth adds Bearer token authentication to the request.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func WithAuth(req Request, token string) Request {
	return WithHeader(req, "Authorization", "Bearer "+token)
}

// WithHeader adds a single header to the request.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func WithHeader(req Request, key, value string) Request {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	headers[key] = value
	req.Headers = headers

	return req
}

// WithQueryParam sets a single query parameter.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func WithQueryParam(req Request, key, value string) Request {
	params := make(map[string]string, len(req.QueryParams)+1)
	for k, v := range req.QueryParams {
		params[k] = v
	}
	params[key] = value
	req.QueryParams = params

	return req
}

// WithCookie sets a single cookie.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func WithCookie(req Request, name, value string) Request {
	cookies := make(map[string]string, len(req.Cookies)+1)
	for k, v := range req.Cookies {
		cookies[k] = v
	}
	cookies[name] = value
	req.Cookies = cookies

	return req
}

// WithRemoteAddr sets the client address seen by the server.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func WithRemoteAddr(req Request, addr string) Request {
	return WithHeader(req, RemoteAddrHeader, addr)
}

// RemoteAddrHeader is consumed by Client to set http.Request.RemoteAddr and
// is never forwarded to the handler.
const RemoteAddrHeader = "X-Testutil-Remote-Addr"
