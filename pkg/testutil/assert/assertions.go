// Package assert provides HTTP response assertions with detailed error
// reporting for testutil responses.
package assert

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelpascari/ordermanager/pkg/testutil"
)

const (
	shortTruncateLength = 200
	longTruncateLength  = 500
)

var (
	errFieldNotFound = errors.New("field not found")
	errInvalidAccess = errors.New("cannot access field on non-object type")
)

// Status verifies the HTTP status code with detailed error reporting.
func Status(t *testing.T, resp *testutil.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Status code mismatch:\n  Expected: %d (%s)\n  Actual:   %d (%s)\n  Response: %s",
			expected, http.StatusText(expected),
			resp.StatusCode, http.StatusText(resp.StatusCode),
			truncateResponse(resp.Raw, shortTruncateLength))
	}
}

// StatusOK verifies the response has 200 OK status.
func StatusOK(t *testing.T, resp *testutil.Response) {
	t.Helper()
	Status(t, resp, http.StatusOK)
}

// Header verifies a response header value.
func Header(t *testing.T, resp *testutil.Response, key, expected string) {
	t.Helper()
	actual := resp.Headers.Get(key)
	if actual != expected {
		t.Errorf("Header %q mismatch:\n  Expected: %q\n  Actual:   %q",
			key, expected, actual)
	}
}

// HeaderContains verifies a response header contains a substring.
func HeaderContains(t *testing.T, resp *testutil.Response, key, substring string) {
	t.Helper()
	actual := resp.Headers.Get(key)
	if !strings.Contains(actual, substring) {
		t.Errorf("Header %q should contain %q:\n  Actual: %q",
			key, substring, actual)
	}
}

// JSONContentType verifies the response has JSON content type.
func JSONContentType(t *testing.T, resp *testutil.Response) {
	t.Helper()
	HeaderContains(t, resp, "Content-Type", "application/json")
}

// Redirect verifies a 303 See Other pointing at location.
func Redirect(t *testing.T, resp *testutil.Response, location string) {
	t.Helper()
	Status(t, resp, http.StatusSeeOther)
	Header(t, resp, "Location", location)
}

// BodyContains verifies the response body contains every substring.
func BodyContains(t *testing.T, resp *testutil.Response, substrings ...string) {
	t.Helper()
	body := string(resp.Raw)
	for _, s := range substrings {
		if !strings.Contains(body, s) {
			t.Errorf("Response body should contain %q:\n  Body: %s",
				s, truncateResponse(resp.Raw, longTruncateLength))
		}
	}
}

// BodyNotContains verifies the response body contains none of substrings.
func BodyNotContains(t *testing.T, resp *testutil.Response, substrings ...string) {
	t.Helper()
	body := string(resp.Raw)
	for _, s := range substrings {
		if strings.Contains(body, s) {
			t.Errorf("Response body should not contain %q:\n  Body: %s",
				s, truncateResponse(resp.Raw, longTruncateLength))
		}
	}
}

// JSONField verifies a specific field in JSON response using dot notation.
func JSONField(t *testing.T, resp *testutil.Response, fieldPath string, expected interface{}) {
	t.Helper()

	var data interface{}
	if err := json.Unmarshal(resp.Raw, &data); err != nil {
		t.Fatalf("Failed to parse response as JSON: %v", err)
	}

	actual, err := getJSONField(data, fieldPath)
	if err != nil {
		t.Fatalf("Failed to get field %q: %v", fieldPath, err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("JSON field %q mismatch:\n  Expected: %v (%T)\n  Actual:   %v (%T)",
			fieldPath, expected, expected, actual, actual)
	}
}

// ValidationError verifies a 400 whose details map holds expected for field.
func ValidationError(t *testing.T, resp *testutil.Response, field, expected string) {
	t.Helper()
	Status(t, resp, http.StatusBadRequest)
	JSONField(t, resp, "details."+field, expected)
}

// Cookie verifies the response sets name and returns it.
func Cookie(t *testing.T, resp *testutil.Response, name string) *http.Cookie {
	t.Helper()
	cookie := resp.Cookie(name)
	if cookie == nil {
		t.Fatalf("Expected cookie %q to be set, got %v", name, cookieNames(resp.Cookies))
	}

	return cookie
}

// getJSONField extracts a field from JSON data using dot notation (e.g., "user.name").
func getJSONField(data interface{}, path string) (interface{}, error) {
	current := data

	for _, part := range strings.Split(path, ".") {
		switch value := current.(type) {
		case map[string]interface{}:
			val, ok := value[part]
			if !ok {
				return nil, fmt.Errorf("field %q: %w", part, errFieldNotFound)
			}
			current = val
		default:
			return nil, fmt.Errorf("field %q on type %T: %w", part, value, errInvalidAccess)
		}
	}

	return current, nil
}

// truncateResponse truncates response body for error messages.
func truncateResponse(body []byte, maxLen int) string {
	if len(body) <= maxLen {
		return string(body)
	}

	return string(body[:maxLen]) + "... (truncated)"
}

func cookieNames(cookies []*http.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}

	return names
}
