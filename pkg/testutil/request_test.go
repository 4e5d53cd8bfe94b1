package testutil

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestBuilders(t *testing.T) {
	assert.Equal(t, Request{Method: http.MethodGet, Path: "/"}, GET("/"))
	assert.Equal(t, Request{Method: http.MethodPost, Path: "/api", Body: 1}, POST("/api", 1))

	form := url.Values{"email": {"a@b.co"}}
	assert.Equal(t, Request{Method: http.MethodPost, Path: "/signin", Form: form}, PostForm("/signin", form))
}

func TestRequestModifiers(t *testing.T) {
	base := WithHeader(GET("/"), "X-One", "1")
	derived := WithAuth(base, "token")
	derived = WithQueryParam(derived, "orderId", "A")
	derived = WithCookie(derived, "om_session", "abc")
	derived = WithRemoteAddr(derived, "192.0.2.1:1234")

	assert.Equal(t, map[string]string{"X-One": "1"}, base.Headers, "modifiers never mutate their input")
	assert.Equal(t, "Bearer token", derived.Headers["Authorization"])
	assert.Equal(t, "192.0.2.1:1234", derived.Headers[RemoteAddrHeader])
	assert.Equal(t, map[string]string{"orderId": "A"}, derived.QueryParams)
	assert.Equal(t, map[string]string{"om_session": "abc"}, derived.Cookies)
}

func TestResponseCookie(t *testing.T) {
	resp := &Response{
		Headers: http.Header{"Location": {"/"}},
		Cookies: []*http.Cookie{{Name: "a", Value: "1"}, {Name: "a", Value: "2"}},
	}

	assert.Equal(t, "2", resp.Cookie("a").Value)
	assert.Nil(t, resp.Cookie("b"))
	assert.Equal(t, "/", resp.Location())
}

func TestIsRequestError(t *testing.T) {
	assert.True(t, IsRequestError(&RequestError{Method: "GET", Path: "/", Err: http.ErrHandlerTimeout}))
	assert.False(t, IsRequestError(http.ErrHandlerTimeout))
}
