package web

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelpascari/ordermanager/internal/export"
	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/session"
	"github.com/pavelpascari/ordermanager/internal/store"
	"github.com/pavelpascari/ordermanager/pkg/middleware/auth"
	"github.com/pavelpascari/ordermanager/pkg/typedhttp"
)

type signInRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// Sign-in messages shown above the form.
const (
	msgInvalidCredentials = "Invalid email or password."
	msgSignInUnavailable  = "Sign-in is unavailable right now. Please try again."
)

func (s *Server) home(ctx context.Context, f order.Filter) (Page, error) {
	sess, _ := session.FromContext(ctx)
	now := s.now()
	page := newPage(now, sess)
	if sess == nil {
		return page, nil
	}

	page.Form.Values = order.New(now)

	return page.withView(s.deps.Shell.View(ctx, sess, f)), nil
}

func (s *Server) signIn(ctx context.Context, req signInRequest) (Page, error) {
	_, cookie, err := s.deps.Sessions.Login(ctx, req.Email, req.Password)
	if err == nil {
		return redirectHome(cookie), nil
	}

	page := newPage(s.now(), nil)
	page.SignIn = SignInForm{Email: req.Email, Error: msgInvalidCredentials}
	page.status = http.StatusUnauthorized

	if !errors.Is(err, session.ErrInvalidCredentials) {
		s.deps.Logger.ErrorContext(ctx, "sign-in failed", slog.Any("error", err))
		page.SignIn.Error = msgSignInUnavailable
		page.status = http.StatusBadGateway
	}

	return page, nil
}

func (s *Server) signOut(ctx context.Context, _ struct{}) (Page, error) {
	sess, _ := session.FromContext(ctx)

	return redirectHome(s.deps.Sessions.Logout(sess)), nil
}

// submit re-renders the dashboard with the submitted values when the order
// is rejected or could not be stored, and redirects home once it is saved.
func (s *Server) submit(ctx context.Context, o order.Order) (Page, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return redirectHome(), nil
	}

	submitted, fieldErrs, err := s.deps.Shell.Submit(ctx, sess, o)
	if err == nil && len(fieldErrs) == 0 {
		return redirectHome(), nil
	}

	page := newPage(s.now(), sess).withView(s.deps.Shell.View(ctx, sess, order.Filter{}))
	page.Form = OrderForm{Values: submitted, Errors: fieldErrs}
	if len(fieldErrs) > 0 {
		page.status = http.StatusUnprocessableEntity
	}

	return page, nil
}

func (s *Server) download(format export.Format) func(context.Context, order.Filter) (typedhttp.StreamingResponse, error) {
	return func(ctx context.Context, f order.Filter) (typedhttp.StreamingResponse, error) {
		sess, _ := session.FromContext(ctx)
		view := s.deps.Shell.View(ctx, sess, f)

		var buf bytes.Buffer
		if err := s.deps.Exporter.Write(&buf, format, view.Orders); err != nil {
			return typedhttp.StreamingResponse{}, err
		}

		return typedhttp.StreamingResponse{
			ContentType: format.ContentType(),
			Filename:    s.deps.Exporter.Filename(format),
			Stream:      &buf,
		}, nil
	}
}

func apiSession(ctx context.Context) (*session.Session, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, typedhttp.NewUnauthorizedError("authentication required")
	}

	return &session.Session{
		UserID:      user.ID,
		Email:       user.Email,
		ExpiresAt:   user.ExpiresAt,
		AccessToken: user.AccessToken,
	}, nil
}

func (s *Server) listOrders(ctx context.Context, f order.Filter) (order.View, error) {
	sess, err := apiSession(ctx)
	if err != nil {
		return order.View{}, err
	}

	return s.deps.Shell.View(ctx, sess, f), nil
}

func (s *Server) createOrder(ctx context.Context, o order.Order) (order.Order, error) {
	sess, err := apiSession(ctx)
	if err != nil {
		return order.Order{}, err
	}

	created, fieldErrs, err := s.deps.Shell.Submit(ctx, sess, o)
	if err != nil {
		return order.Order{}, err
	}
	if len(fieldErrs) > 0 {
		return order.Order{}, typedhttp.NewValidationError("Validation failed", fieldErrs)
	}

	return created, nil
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (s *Server) issueToken(ctx context.Context, req tokenRequest) (tokenResponse, error) {
	sess, cookie, err := s.deps.Sessions.Login(ctx, req.Email, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		return tokenResponse{}, typedhttp.NewUnauthorizedError(msgInvalidCredentials)
	}
	if err != nil {
		return tokenResponse{}, err
	}

	return tokenResponse{AccessToken: cookie.Value, TokenType: "Bearer", ExpiresAt: sess.ExpiresAt}, nil
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h healthResponse) StatusCode() int {
	if h.Status != "ok" {
		return http.StatusServiceUnavailable
	}

	return http.StatusOK
}

func (s *Server) health(ctx context.Context, _ struct{}) (healthResponse, error) {
	if s.deps.Health == nil {
		return healthResponse{Status: "ok"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.deps.Health.Ping(ctx); err != nil {
		s.deps.Logger.WarnContext(ctx, "health check failed", slog.Any("error", err))
		return healthResponse{Status: "degraded", Error: "store unreachable"}, nil
	}

	return healthResponse{Status: "ok"}, nil
}

// apiErrorMapper extends the default mapping with repository failures,
// which surface as 502 since the API has no previous data to fall back on.
func apiErrorMapper() typedhttp.ErrorMapper {
	fallback := &typedhttp.DefaultErrorMapper{}

	return typedhttp.ErrorMapperFunc(func(err error) (int, interface{}) {
		var serr *store.Error
		if errors.As(err, &serr) {
			return http.StatusBadGateway, typedhttp.ErrorResponse{
				Error: "Order storage is unavailable",
				Code:  "STORE_UNAVAILABLE",
			}
		}

		return fallback.MapError(err)
	})
}
