package testutil

import (
	"context"
	"testing"
	"time"
)

// Common timeout values for convenience.
const (
	DefaultTimeout = 30 * time.Second
	ShortTimeout   = 5 * time.Second
)

// MustExecute executes a request and fails the test on error.
//
//nolint:gocritic // Request struct size is acceptable for this usage
func MustExecute(t *testing.T, client HTTPClient, req Request) *Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ShortTimeout)
	defer cancel()

	resp, err := client.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", req.Method, req.Path, err)
	}

	return resp
}
