// Package web serves the order manager: HTML pages for staff, CSV and XLSX
// downloads, and a JSON API documented with OpenAPI.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pavelpascari/ordermanager/internal/export"
	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/session"
	"github.com/pavelpascari/ordermanager/internal/shell"
	"github.com/pavelpascari/ordermanager/pkg/middleware/auth"
	"github.com/pavelpascari/ordermanager/pkg/middleware/observability"
	"github.com/pavelpascari/ordermanager/pkg/middleware/ratelimit"
	"github.com/pavelpascari/ordermanager/pkg/middleware/recovery"
	"github.com/pavelpascari/ordermanager/pkg/openapi"
	"github.com/pavelpascari/ordermanager/pkg/typedhttp"
)

// Pinger is implemented by repositories that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Shell    *shell.Shell
	Sessions *session.Provider
	Tokens   *auth.JWTMiddleware
	Exporter *export.Exporter
	Logger   *slog.Logger
	// Health is optional.
	Health Pinger
}

// Server is the HTTP surface.
type Server struct {
	deps      Deps
	router    *typedhttp.TypedRouter
	templates *template.Template
	now       func() time.Time

	signInPerMinute int
	signInLimiter   *ratelimit.TokenBucketRateLimiter
	apiInfo         openapi.Info
	apiDoc          []byte
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now for page dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithSignInLimit caps sign-in attempts per client address and minute.
// Zero disables the limit.
func WithSignInLimit(perMinute int) Option {
	return func(s *Server) {
		s.signInPerMinute = perMinute
	}
}

// WithAPIInfo sets the OpenAPI document's info block.
func WithAPIInfo(info openapi.Info) Option {
	return func(s *Server) {
		s.apiInfo = info
	}
}

// New builds the server and registers every route.
func New(deps Deps, opts ...Option) (*Server, error) {
	if deps.Shell == nil || deps.Sessions == nil || deps.Tokens == nil {
		return nil, errors.New("web: shell, sessions and tokens are required")
	}
	if deps.Exporter == nil {
		deps.Exporter = export.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:      deps,
		templates: templates,
		now:       time.Now,
		apiInfo: openapi.Info{
			Title:       "Noble Fit Order Manager API",
			Version:     "1.0.0",
			Description: "Order entry and history for signed-in staff.",
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = typedhttp.NewRouter(
		typedhttp.WithValidator(order.Validator()),
		typedhttp.WithLogger(deps.Logger),
	)
	s.router.Use(
		chimw.RequestID,
		recovery.NewPanicRecoveryMiddleware(deps.Logger).HTTPMiddleware(),
		observability.NewLoggingMiddleware(deps.Logger, observability.WithSkipPaths("/healthz")).HTTPMiddleware(),
		deps.Sessions.HTTPMiddleware(),
	)

	s.routes()

	if err := s.buildAPIDoc(); err != nil {
		return nil, err
	}

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the typed router, e.g. for generating the API document.
func (s *Server) Router() *typedhttp.TypedRouter {
	return s.router
}

// APIDocument returns the generated OpenAPI document as JSON.
func (s *Server) APIDocument() []byte {
	return s.apiDoc
}

// PruneLimits forgets idle sign-in rate limit buckets and reports how many
// were dropped.
func (s *Server) PruneLimits() int {
	if s.signInLimiter == nil {
		return 0
	}

	return s.signInLimiter.Prune()
}

func (s *Server) html() typedhttp.HandlerOption {
	return typedhttp.WithEncoder[Page](typedhttp.NewHTMLEncoder[Page](s.templates, "page"))
}

func (s *Server) routes() {
	r := s.router

	typedhttp.GET(r, "/", typedhttp.HandlerFunc[order.Filter, Page](s.home),
		typedhttp.WithDecoder[order.Filter](typedhttp.NewQueryDecoder[order.Filter](nil)),
		s.html(), typedhttp.WithHidden())

	typedhttp.POST(r, "/signin", typedhttp.HandlerFunc[signInRequest, Page](s.signIn),
		typedhttp.WithDecoder[signInRequest](typedhttp.NewFormDecoder[signInRequest](nil)),
		typedhttp.WithMiddleware(s.signInLimit()...),
		s.html(), typedhttp.WithHidden())

	typedhttp.POST(r, "/signout", typedhttp.HandlerFunc[struct{}, Page](s.signOut),
		s.html(), typedhttp.WithHidden())

	typedhttp.POST(r, "/orders", typedhttp.HandlerFunc[order.Order, Page](s.submit),
		typedhttp.WithDecoder[order.Order](typedhttp.NewFormDecoder[order.Order](nil, typedhttp.WithLenientNumbers())),
		s.html(), typedhttp.WithHidden())

	for _, format := range []export.Format{export.CSV, export.XLSX} {
		typedhttp.GET(r, "/orders/export."+string(format),
			typedhttp.HandlerFunc[order.Filter, typedhttp.StreamingResponse](s.download(format)),
			typedhttp.WithDecoder[order.Filter](typedhttp.NewQueryDecoder[order.Filter](nil)),
			typedhttp.WithEncoder[typedhttp.StreamingResponse](typedhttp.NewStreamEncoder()),
			typedhttp.WithMiddleware(s.requireSession),
			typedhttp.WithHidden())
	}

	api := []typedhttp.HandlerOption{
		typedhttp.WithMiddleware(s.deps.Tokens.HTTPMiddleware()),
		typedhttp.WithErrorMapper(apiErrorMapper()),
		typedhttp.WithTags("orders"),
		typedhttp.WithSecured(),
	}

	typedhttp.GET(r, "/api/orders", typedhttp.HandlerFunc[order.Filter, order.View](s.listOrders),
		append(api,
			typedhttp.WithSummary("List orders"),
			typedhttp.WithDescription("Returns the caller's orders, newest first, narrowed by the optional filter, with the aggregate total."),
		)...)

	typedhttp.POST(r, "/api/orders", typedhttp.HandlerFunc[order.Order, order.Order](s.createOrder),
		append(api,
			typedhttp.WithDecoder[order.Order](typedhttp.NewJSONDecoder[order.Order](nil)),
			typedhttp.WithSummary("Create an order"),
			typedhttp.WithDescription("Validates and stores an order for the caller. Date defaults to today and quantity to 1."),
		)...)

	typedhttp.POST(r, "/api/token", typedhttp.HandlerFunc[tokenRequest, tokenResponse](s.issueToken),
		typedhttp.WithMiddleware(s.signInLimit()...),
		typedhttp.WithErrorMapper(apiErrorMapper()),
		typedhttp.WithTags("auth"),
		typedhttp.WithSummary("Exchange credentials for a bearer token"))

	typedhttp.GET(r, "/healthz", typedhttp.HandlerFunc[struct{}, healthResponse](s.health),
		typedhttp.WithHidden())

	r.Handle(http.MethodGet, "/openapi.json", http.HandlerFunc(s.serveAPIDoc))
}

func (s *Server) signInLimit() []typedhttp.Middleware {
	if s.signInPerMinute <= 0 {
		return nil
	}

	if s.signInLimiter == nil {
		s.signInLimiter = ratelimit.NewTokenBucketRateLimiter(s.signInPerMinute, time.Minute,
			ratelimit.WithRefillTokens(s.signInPerMinute))
	}

	m := ratelimit.NewRateLimitMiddleware(s.signInLimiter,
		ratelimit.WithRetryAfter(time.Minute),
		ratelimit.WithDeniedHook(func(r *http.Request, key string) {
			s.deps.Logger.WarnContext(r.Context(), "sign-in rate limited",
				slog.String("client", key), slog.String("path", r.URL.Path))
		}),
	)

	return []typedhttp.Middleware{m.HTTPMiddleware()}
}

// requireSession sends visitors without a session to the sign-in page.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.FromContext(r.Context()); !ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) apiGenerator() *openapi.Generator {
	return openapi.NewGenerator(&openapi.Config{
		Info:          s.apiInfo,
		SessionCookie: s.deps.Sessions.CookieName(),
	})
}

// APIDocumentYAML renders the OpenAPI document as YAML.
func (s *Server) APIDocumentYAML() ([]byte, error) {
	gen := s.apiGenerator()

	doc, err := gen.Generate(s.router)
	if err != nil {
		return nil, fmt.Errorf("generate api document: %w", err)
	}

	return gen.GenerateYAML(doc)
}

func (s *Server) buildAPIDoc() error {
	gen := s.apiGenerator()

	doc, err := gen.Generate(s.router)
	if err != nil {
		return fmt.Errorf("generate api document: %w", err)
	}

	s.apiDoc, err = gen.GenerateJSON(doc)
	if err != nil {
		return fmt.Errorf("encode api document: %w", err)
	}

	return nil
}

func (s *Server) serveAPIDoc(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.apiDoc)
}
