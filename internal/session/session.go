// Package session tracks who is signed in. Sessions are signed tokens kept
// in an HttpOnly cookie; credentials are checked by an Authenticator.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pavelpascari/ordermanager/pkg/middleware/auth"
)

// ErrInvalidCredentials is returned when the email and password do not match
// an account.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Session is an authenticated user.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
	// AccessToken is the identity provider's token, when it issued one.
	AccessToken string
}

// Identity is what an Authenticator vouches for.
type Identity struct {
	UserID      string
	Email       string
	AccessToken string
}

// Authenticator verifies an email and password.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
}

// EventType names a session transition.
type EventType int

const (
	SignedIn EventType = iota + 1
	SignedOut
	Expired
)

func (t EventType) String() string {
	switch t {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Expired:
		return "session_expired"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event reports a transition for the session's owner. For Expired events
// only UserID is known and it is empty when the token was unreadable.
type Event struct {
	Type    EventType
	Session Session
}

// Provider issues, reads and ends sessions and notifies subscribers of
// transitions.
type Provider struct {
	tokens     *auth.JWTMiddleware
	authn      Authenticator
	cookieName string
	secure     bool
	logger     *slog.Logger

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(Event)
}

// Option configures a Provider.
type Option func(*Provider)

// WithCookieName sets the session cookie name. It must match the cookie the
// token middleware reads.
func WithCookieName(name string) Option {
	return func(p *Provider) {
		p.cookieName = name
	}
}

// WithSecureCookie marks the cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(p *Provider) {
		p.secure = secure
	}
}

// WithLogger sets the logger used for session transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// DefaultCookieName is the session cookie used unless WithCookieName is given.
const DefaultCookieName = "om_session"

// NewProvider returns a Provider signing sessions with tokens and checking
// credentials with authn.
func NewProvider(tokens *auth.JWTMiddleware, authn Authenticator, opts ...Option) *Provider {
	p := &Provider{
		tokens:      tokens,
		authn:       authn,
		cookieName:  DefaultCookieName,
		logger:      slog.Default(),
		subscribers: make(map[int]func(Event)),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// CookieName returns the session cookie name.
func (p *Provider) CookieName() string {
	return p.cookieName
}

// Subscribe registers fn for every later transition and returns a function
// that removes it. fn runs synchronously on the goroutine that caused the
// transition.
func (p *Provider) Subscribe(fn func(Event)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

func (p *Provider) emit(e Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	p.logger.Debug("session event", slog.String("event", e.Type.String()), slog.String("owner", e.Session.UserID))

	for _, fn := range fns {
		fn(e)
	}
}

// Current returns the request's session. A missing cookie is no session; an
// expired or invalid one is no session and emits Expired.
func (p *Provider) Current(r *http.Request) (*Session, bool) {
	s, err := p.read(r)
	return s, err == nil
}

// read distinguishes a missing token from a stale one.
func (p *Provider) read(r *http.Request) (*Session, error) {
	user, err := p.tokens.Authenticate(r)
	if err == nil {
		return fromUser(user), nil
	}

	if errors.Is(err, auth.ErrTokenMissing) {
		return nil, err
	}

	var owner string
	if token, ok := p.tokens.ExtractToken(r); ok {
		if peeked, perr := p.tokens.PeekUser(token); perr == nil {
			owner = peeked.ID
		}
	}
	p.emit(Event{Type: Expired, Session: Session{UserID: owner}})

	return nil, err
}

// Login checks the credentials and returns the new session together with
// the cookie that carries it. SignedIn is emitted on success.
func (p *Provider) Login(ctx context.Context, email, password string) (*Session, *http.Cookie, error) {
	identity, err := p.authn.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	token, expiresAt, err := p.tokens.IssueToken(&auth.User{
		ID:          identity.UserID,
		Email:       identity.Email,
		AccessToken: identity.AccessToken,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	s := &Session{
		UserID:      identity.UserID,
		Email:       identity.Email,
		ExpiresAt:   expiresAt,
		AccessToken: identity.AccessToken,
	}
	p.emit(Event{Type: SignedIn, Session: *s})

	return s, p.cookie(token, expiresAt), nil
}

// SignIn is Login writing the cookie to w.
func (p *Provider) SignIn(ctx context.Context, w http.ResponseWriter, email, password string) (*Session, error) {
	s, cookie, err := p.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, cookie)

	return s, nil
}

// Logout ends s and returns the cookie that clears it from the browser.
// SignedOut is emitted when s is not nil.
func (p *Provider) Logout(s *Session) *http.Cookie {
	if s != nil {
		p.emit(Event{Type: SignedOut, Session: *s})
	}

	return p.ClearCookie()
}

// SignOut ends the request's session, if any, and clears the cookie.
func (p *Provider) SignOut(w http.ResponseWriter, r *http.Request) {
	s, _ := p.Current(r)
	http.SetCookie(w, p.Logout(s))
}

// ClearCookie returns a cookie that removes the session cookie.
func (p *Provider) ClearCookie() *http.Cookie {
	c := p.cookie("", time.Unix(0, 0))
	c.MaxAge = -1

	return c
}

func (p *Provider) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     p.cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func fromUser(u *auth.User) *Session {
	return &Session{
		UserID:      u.ID,
		Email:       u.Email,
		ExpiresAt:   u.ExpiresAt,
		AccessToken: u.AccessToken,
	}
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by HTTPMiddleware, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// HTTPMiddleware puts the request's session, if any, in the request context.
// Stale cookies are cleared on the response so Expired fires once.
func (p *Provider) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := p.read(r)
			switch {
			case err == nil:
				r = r.WithContext(NewContext(r.Context(), s))
			case !errors.Is(err, auth.ErrTokenMissing):
				if _, cerr := r.Cookie(p.cookieName); cerr == nil {
					http.SetCookie(w, p.ClearCookie())
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
