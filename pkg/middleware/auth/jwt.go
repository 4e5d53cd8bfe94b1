package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrTokenMissing     = errors.New("authentication token missing")
	ErrTokenInvalid     = errors.New("authentication token invalid")
	ErrTokenExpired     = errors.New("authentication token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// User represents an authenticated user
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	// AccessToken is an upstream identity provider token carried inside the
	// session so downstream calls can act as the user.
	AccessToken string `json:"-"`
}

type contextKey string

// UserContextKey is the context key holding the *User.
const UserContextKey contextKey = "user"

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext returns the user attached by the middleware, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(UserContextKey).(*User)
	return user, ok && user != nil
}

// JWTConfig holds JWT middleware configuration
type JWTConfig struct {
	Secret          []byte
	TokenHeader     string
	TokenPrefix     string
	CookieName      string
	SigningMethod   jwt.SigningMethod
	TokenExpiry     time.Duration
	ClaimsExtractor func(jwt.MapClaims) (*User, error)
	Now             func() time.Time
}

// JWTMiddleware issues and verifies HMAC-signed session tokens.
type JWTMiddleware struct {
	config JWTConfig
}

// JWTOption configures JWT middleware
type JWTOption func(*JWTConfig)

// WithTokenHeader sets the header name for token extraction
func WithTokenHeader(header string) JWTOption {
	return func(c *JWTConfig) {
		c.TokenHeader = header
	}
}

// WithTokenPrefix sets the token prefix
func WithTokenPrefix(prefix string) JWTOption {
	return func(c *JWTConfig) {
		c.TokenPrefix = prefix
	}
}

// WithCookie also accepts tokens from the named cookie when no header is sent.
func WithCookie(name string) JWTOption {
	return func(c *JWTConfig) {
		c.CookieName = name
	}
}

// WithSigningMethod sets the JWT signing method (HS256 or HS512).
func WithSigningMethod(method jwt.SigningMethod) JWTOption {
	return func(c *JWTConfig) {
		c.SigningMethod = method
	}
}

// WithTokenExpiry sets the token expiry duration
func WithTokenExpiry(expiry time.Duration) JWTOption {
	return func(c *JWTConfig) {
		c.TokenExpiry = expiry
	}
}

// WithClaimsExtractor sets a custom claims extractor function
func WithClaimsExtractor(extractor func(jwt.MapClaims) (*User, error)) JWTOption {
	return func(c *JWTConfig) {
		c.ClaimsExtractor = extractor
	}
}

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) JWTOption {
	return func(c *JWTConfig) {
		c.Now = now
	}
}

// NewJWTMiddleware creates a new JWT middleware with the given secret and options
func NewJWTMiddleware(secret []byte, opts ...JWTOption) *JWTMiddleware {
	config := JWTConfig{
		Secret:          secret,
		TokenHeader:     "Authorization",
		TokenPrefix:     "Bearer ",
		SigningMethod:   jwt.SigningMethodHS256,
		TokenExpiry:     1 * time.Hour,
		ClaimsExtractor: defaultClaimsExtractor,
		Now:             time.Now,
	}

	for _, opt := range opts {
		opt(&config)
	}

	return &JWTMiddleware{config: config}
}

// GetConfig returns the middleware configuration
func (m *JWTMiddleware) GetConfig() JWTConfig {
	return m.config
}

// ExtractToken extracts the token from the configured header, falling back
// to the session cookie.
func (m *JWTMiddleware) ExtractToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get(m.config.TokenHeader); authHeader != "" {
		if !strings.HasPrefix(authHeader, m.config.TokenPrefix) {
			return "", false
		}

		token := strings.TrimPrefix(authHeader, m.config.TokenPrefix)
		return token, token != ""
	}

	if m.config.CookieName == "" {
		return "", false
	}

	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	return cookie.Value, true
}

// ValidateToken validates a JWT token and returns claims
func (m *JWTMiddleware) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	},
		jwt.WithValidMethods([]string{m.config.SigningMethod.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithExpirationRequired(),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, ErrTokenInvalid
	}

	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// Authenticate extracts and validates the request's token.
func (m *JWTMiddleware) Authenticate(r *http.Request) (*User, error) {
	tokenString, ok := m.ExtractToken(r)
	if !ok {
		return nil, ErrTokenMissing
	}

	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := m.config.ClaimsExtractor(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}

	return user, nil
}

// HTTPMiddleware rejects requests without a valid token with a 401 JSON body
// and otherwise puts the user in the request context.
func (m *JWTMiddleware) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := m.Authenticate(r)
			if err != nil {
				m.writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// PeekUser verifies the token's signature but not its time claims, so the
// owner of an expired token can still be identified. The result must not
// be used to grant access.
func (m *JWTMiddleware) PeekUser(tokenString string) (*User, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.config.SigningMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})

	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, ErrTokenInvalid
	}

	return m.config.ClaimsExtractor(claims)
}

// IssueToken signs a token for user that expires after the configured expiry.
func (m *JWTMiddleware) IssueToken(user *User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, ErrInvalidClaims
	}

	now := m.config.Now()
	expiresAt := now.Add(m.config.TokenExpiry)

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	if user.AccessToken != "" {
		claims["provider_token"] = user.AccessToken
	}

	signed, err := jwt.NewWithClaims(m.config.SigningMethod, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, time.Unix(expiresAt.Unix(), 0), nil
}

// writeError writes an error response
func (m *JWTMiddleware) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  "UNAUTHORIZED",
	})
}

// defaultClaimsExtractor reads sub, email and exp.
func defaultClaimsExtractor(claims jwt.MapClaims) (*User, error) {
	userID, err := claims.GetSubject()
	if err != nil || userID == "" {
		return nil, ErrInvalidClaims
	}

	email, _ := claims["email"].(string)

	token, _ := claims["provider_token"].(string)

	user := &User{ID: userID, Email: email, AccessToken: token}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		user.ExpiresAt = exp.Time
	}

	return user, nil
}
