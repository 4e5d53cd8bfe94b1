package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestJWTMiddleware_Configuration(t *testing.T) {
	t.Run("default_configuration", func(t *testing.T) {
		config := NewJWTMiddleware(testSecret).GetConfig()

		assert.Equal(t, "Authorization", config.TokenHeader)
		assert.Equal(t, "Bearer ", config.TokenPrefix)
		assert.Empty(t, config.CookieName)
		assert.Equal(t, jwt.SigningMethodHS256, config.SigningMethod)
		assert.Equal(t, 1*time.Hour, config.TokenExpiry)
	})

	t.Run("custom_configuration", func(t *testing.T) {
		config := NewJWTMiddleware(testSecret,
			WithTokenHeader("X-Auth-Token"),
			WithTokenPrefix("Token "),
			WithCookie("om_session"),
			WithSigningMethod(jwt.SigningMethodHS512),
			WithTokenExpiry(30*time.Minute),
		).GetConfig()

		assert.Equal(t, "X-Auth-Token", config.TokenHeader)
		assert.Equal(t, "Token ", config.TokenPrefix)
		assert.Equal(t, "om_session", config.CookieName)
		assert.Equal(t, jwt.SigningMethodHS512, config.SigningMethod)
		assert.Equal(t, 30*time.Minute, config.TokenExpiry)
	})
}

func TestJWTMiddleware_IssueAndValidate(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	m := NewJWTMiddleware(testSecret, WithClock(fixedClock(now)), WithTokenExpiry(2*time.Hour))

	token, expiresAt, err := m.IssueToken(&User{ID: "u1", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.True(t, expiresAt.Equal(now.Add(2*time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)

	user, err := m.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.True(t, user.ExpiresAt.Equal(expiresAt))
	assert.Empty(t, user.AccessToken)
}

func TestJWTMiddleware_ProviderToken(t *testing.T) {
	m := NewJWTMiddleware(testSecret)

	token, _, err := m.IssueToken(&User{ID: "u1", AccessToken: "upstream"})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "upstream", claims["provider_token"])

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	user, err := m.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "upstream", user.AccessToken)
}

func TestJWTMiddleware_PeekUser(t *testing.T) {
	issued := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	m := NewJWTMiddleware(testSecret, WithClock(fixedClock(issued)))

	token, _, err := m.IssueToken(&User{ID: "u1", Email: "jane@example.com"})
	require.NoError(t, err)

	later := NewJWTMiddleware(testSecret, WithClock(fixedClock(issued.Add(24*time.Hour))))
	_, err = later.ValidateToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)

	user, err := later.PeekUser(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	_, err = later.PeekUser("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	forged, _, err := NewJWTMiddleware([]byte("someone-elses-secret"), WithClock(fixedClock(issued))).
		IssueToken(&User{ID: "victim"})
	require.NoError(t, err)
	_, err = later.PeekUser(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "victim"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = later.PeekUser(unsigned)
	assert.Error(t, err)
}

func TestJWTMiddleware_ClaimsExtractor(t *testing.T) {
	extract := func(claims jwt.MapClaims) (*User, error) {
		sub, _ := claims["sub"].(string)
		return &User{ID: "staff:" + sub}, nil
	}
	m := NewJWTMiddleware(testSecret, WithClaimsExtractor(extract))

	token, _, err := m.IssueToken(&User{ID: "u1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	user, err := m.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "staff:u1", user.ID)

	peeked, err := m.PeekUser(token)
	require.NoError(t, err)
	assert.Equal(t, "staff:u1", peeked.ID)
}

func TestJWTMiddleware_IssueRequiresUser(t *testing.T) {
	_, _, err := NewJWTMiddleware(testSecret).IssueToken(&User{})
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestJWTMiddleware_ValidateErrors(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewJWTMiddleware(testSecret, WithClock(fixedClock(now)))
	token, _, err := issuer.IssueToken(&User{ID: "u1"})
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name      string
		validator *JWTMiddleware
		token     string
		expected  error
	}{
		{
			name:      "expired",
			validator: NewJWTMiddleware(testSecret, WithClock(fixedClock(now.Add(2*time.Hour)))),
			token:     token,
			expected:  ErrTokenExpired,
		},
		{
			name:      "wrong secret",
			validator: NewJWTMiddleware([]byte("other"), WithClock(fixedClock(now))),
			token:     token,
			expected:  ErrInvalidSignature,
		},
		{
			name:      "wrong algorithm",
			validator: NewJWTMiddleware(testSecret, WithClock(fixedClock(now)), WithSigningMethod(jwt.SigningMethodHS512)),
			token:     token,
			expected:  ErrInvalidSignature,
		},
		{
			name:      "garbage",
			validator: NewJWTMiddleware(testSecret),
			token:     "not.a.token",
			expected:  ErrTokenInvalid,
		},
		{
			name:      "missing exp",
			validator: NewJWTMiddleware(testSecret),
			token:     noExp,
			expected:  ErrTokenInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.validator.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestJWTMiddleware_ExtractToken(t *testing.T) {
	m := NewJWTMiddleware(testSecret, WithCookie("om_session"))

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
		wantOK bool
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc", wantOK: true},
		{name: "wrong prefix", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer "},
		{name: "cookie", cookie: "xyz", want: "xyz", wantOK: true},
		{name: "header wins over cookie", header: "Bearer abc", cookie: "xyz", want: "abc", wantOK: true},
		{name: "nothing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "om_session", Value: tt.cookie})
			}

			got, ok := m.ExtractToken(req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTMiddleware_HTTPMiddleware(t *testing.T) {
	m := NewJWTMiddleware(testSecret, WithCookie("om_session"))
	token, _, err := m.IssueToken(&User{ID: "u1", Email: "jane@example.com"})
	require.NoError(t, err)

	handler := m.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(user.ID))
	}))

	t.Run("authorized via cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", http.NoBody)
		req.AddCookie(&http.Cookie{Name: "om_session", Value: token})
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", w.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", http.NoBody))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, ErrTokenMissing.Error(), body["error"])
		assert.Equal(t, "UNAUTHORIZED", body["code"])
	})
}

func TestUserFromContext_Empty(t *testing.T) {
	_, ok := UserFromContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody).Context())
	assert.False(t, ok)
}
