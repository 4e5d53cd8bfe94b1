// Command ordermanager runs the Noble Fit order manager.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelpascari/ordermanager/internal/config"
	"github.com/pavelpascari/ordermanager/internal/export"
	"github.com/pavelpascari/ordermanager/internal/logger"
	"github.com/pavelpascari/ordermanager/internal/session"
	"github.com/pavelpascari/ordermanager/internal/shell"
	"github.com/pavelpascari/ordermanager/internal/store"
	"github.com/pavelpascari/ordermanager/internal/store/memory"
	"github.com/pavelpascari/ordermanager/internal/store/postgrest"
	"github.com/pavelpascari/ordermanager/internal/store/sqlstore"
	"github.com/pavelpascari/ordermanager/internal/web"
	"github.com/pavelpascari/ordermanager/pkg/middleware/auth"
)

const serviceName = "ordermanager"

// pruneInterval is how often idle sign-in rate limit buckets are dropped.
const pruneInterval = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	dumpAPI := flags.Bool("openapi", false, "print the OpenAPI document as YAML and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Service: serviceName,
		Env:     cfg.Log.Env,
		Level:   cfg.Log.Level,
		Output:  stdout,
	})

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	if *dumpAPI {
		doc, err := app.server.APIDocumentYAML()
		if err != nil {
			return err
		}
		_, err = stdout.Write(doc)
		return err
	}

	return app.serve(ctx, cfg.Server)
}

type app struct {
	server *web.Server
	shell  *shell.Shell
	log    *slog.Logger
	closer io.Closer
}

// build wires the repository, authentication, sessions and the HTTP server
// from cfg.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	repo, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	shellOpts := []shell.Option{shell.WithLogger(log)}
	if cfg.Store.Driver == config.DriverPostgREST {
		shellOpts = append(shellOpts, shell.WithScope(func(ctx context.Context, s *session.Session) context.Context {
			return postgrest.WithAccessToken(ctx, s.AccessToken)
		}))
	}
	sh := shell.New(repo, shellOpts...)

	tokens := auth.NewJWTMiddleware([]byte(cfg.Session.Secret),
		auth.WithCookie(cfg.Session.CookieName),
		auth.WithTokenExpiry(cfg.Session.TTL),
	)
	sessions := session.NewProvider(tokens, authenticator(cfg.Auth),
		session.WithCookieName(cfg.Session.CookieName),
		session.WithSecureCookie(cfg.Session.Secure),
		session.WithLogger(log),
	)
	sh.Attach(sessions)

	deps := web.Deps{
		Shell:    sh,
		Sessions: sessions,
		Tokens:   tokens,
		Exporter: export.New(),
		Logger:   log,
	}
	if p, ok := repo.(web.Pinger); ok {
		deps.Health = p
	}

	srv, err := web.New(deps, web.WithSignInLimit(cfg.RateLimit.SignInPerMinute))
	if err != nil {
		sh.Close()
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	return &app{server: srv, shell: sh, log: log, closer: closer}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Repository, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverPostgres, config.DriverSQLite:
		s, err := sqlstore.Open(sqlstore.Dialect(cfg.Driver), cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
		}
		return s, s, nil
	case config.DriverPostgREST:
		return postgrest.New(cfg.URL, cfg.APIKey), nil, nil
	default:
		return memory.New(), nil, nil
	}
}

func authenticator(cfg config.AuthConfig) session.Authenticator {
	if cfg.Mode == config.AuthGoTrue {
		return session.NewGoTrueAuthenticator(cfg.URL, cfg.APIKey)
	}

	users := make([]session.StaticUser, len(cfg.Users))
	for i, u := range cfg.Users {
		users[i] = session.StaticUser{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash}
	}

	return session.NewStaticAuthenticator(users...)
}

// serve runs the HTTP server until ctx is cancelled and then drains it
// within the shutdown timeout.
func (a *app) serve(ctx context.Context, cfg config.ServerConfig) error {
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.server,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server listening", slog.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := a.server.PruneLimits(); n > 0 {
					a.log.Debug("pruned rate limit buckets", slog.Int("count", n))
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info("shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (a *app) close() {
	a.shell.Close()
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.log.Warn("close store", slog.Any("error", err))
		}
	}
}
