// Package shell ties session state to the order history: it fetches an
// owner's orders when they sign in, re-fetches after every successful
// submission and keeps the last good snapshot when the repository fails.
package shell

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/session"
	"github.com/pavelpascari/ordermanager/internal/store"
)

// ErrUnauthenticated is returned by operations that need a session.
var ErrUnauthenticated = errors.New("not signed in")

// State is the shell's view of a request.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}

	return "unauthenticated"
}

// StateOf derives the state from an optional session.
func StateOf(s *session.Session) State {
	if s == nil {
		return Unauthenticated
	}

	return Authenticated
}

// Subscriber is the part of the session provider the shell listens to.
type Subscriber interface {
	Subscribe(fn func(session.Event)) (unsubscribe func())
}

// ScopeFunc derives the context used for repository calls made on behalf
// of s.
type ScopeFunc func(ctx context.Context, s *session.Session) context.Context

type snapshot struct {
	orders  []order.Order
	seq     uint64
	dropped bool
}

// Shell holds one snapshot of the order collection per owner.
type Shell struct {
	repo         store.Repository
	logger       *slog.Logger
	now          func() time.Time
	scope        ScopeFunc
	fetchTimeout time.Duration

	mu          sync.Mutex
	seq         uint64
	snapshots   map[string]*snapshot
	unsubscribe func()
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger for swallowed repository failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shell) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for order defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Shell) {
		s.now = now
	}
}

// WithScope sets the ScopeFunc, e.g. to forward the user's access token.
func WithScope(fn ScopeFunc) Option {
	return func(s *Shell) {
		s.scope = fn
	}
}

// WithFetchTimeout bounds the fetch started by a sign-in event.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Shell) {
		s.fetchTimeout = d
	}
}

func New(repo store.Repository, opts ...Option) *Shell {
	s := &Shell{
		repo:         repo,
		logger:       slog.Default(),
		now:          time.Now,
		scope:        func(ctx context.Context, _ *session.Session) context.Context { return ctx },
		fetchTimeout: 10 * time.Second,
		snapshots:    make(map[string]*snapshot),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Attach subscribes to session transitions. SignedIn fetches the owner's
// collection; SignedOut and Expired drop it.
func (s *Shell) Attach(sub Subscriber) {
	unsubscribe := sub.Subscribe(s.handleEvent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.unsubscribe = unsubscribe
}

// Close stops listening to session transitions.
func (s *Shell) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Shell) handleEvent(e session.Event) {
	switch e.Type {
	case session.SignedIn:
		ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		sess := e.Session
		s.Refresh(ctx, &sess)
	case session.SignedOut, session.Expired:
		if e.Session.UserID != "" {
			s.drop(e.Session.UserID)
		}
	}
}

// Orders returns the owner's snapshot, fetching it first when the owner has
// none yet.
func (s *Shell) Orders(ctx context.Context, sess *session.Session) []order.Order {
	if sess == nil {
		return nil
	}

	if orders, ok := s.current(sess.UserID); ok {
		return orders
	}

	return s.Refresh(ctx, sess)
}

// View is Orders narrowed by f.
func (s *Shell) View(ctx context.Context, sess *session.Session, f order.Filter) order.View {
	return order.NewView(s.Orders(ctx, sess), f)
}

// Refresh re-fetches the owner's collection and replaces the snapshot. On
// failure the error is logged and the previous snapshot is returned.
func (s *Shell) Refresh(ctx context.Context, sess *session.Session) []order.Order {
	orders, err := s.fetch(ctx, sess)
	if err != nil {
		s.logFailure(err, sess.UserID)
		prev, _ := s.current(sess.UserID)
		return prev
	}

	return orders
}

// Submit validates o, inserts it for the session's owner and re-fetches the
// collection. Field errors block the insert and are returned with a nil
// error. A repository failure is logged and returned so the caller can keep
// the submitted values on screen.
func (s *Shell) Submit(ctx context.Context, sess *session.Session, o order.Order) (order.Order, order.FieldErrors, error) {
	if sess == nil {
		return o, nil, ErrUnauthenticated
	}

	o = o.WithDefaults(s.now())
	if errs := order.Validate(o); len(errs) > 0 {
		return o, errs, nil
	}

	if err := s.repo.InsertOrder(s.scope(ctx, sess), order.ToRow(o, sess.UserID)); err != nil {
		err = store.Wrap(store.OpInsert, err)
		s.logFailure(err, sess.UserID)
		return o, nil, err
	}

	s.Refresh(ctx, sess)

	return o, nil, nil
}

func (s *Shell) fetch(ctx context.Context, sess *session.Session) ([]order.Order, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	rows, err := s.repo.ListOrders(s.scope(ctx, sess), sess.UserID)
	if err != nil {
		return nil, store.Wrap(store.OpList, err)
	}

	orders := order.FromRows(rows)
	s.commit(sess.UserID, seq, orders)

	return orders, nil
}

// commit replaces the snapshot unless a later fetch or a drop got there
// first.
func (s *Shell) commit(owner string, seq uint64, orders []order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.snapshots[owner]; ok && cur.seq > seq {
		return
	}

	s.snapshots[owner] = &snapshot{orders: orders, seq: seq}
}

func (s *Shell) drop(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.snapshots[owner] = &snapshot{seq: s.seq, dropped: true}
}

func (s *Shell) current(owner string) ([]order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[owner]
	if !ok || snap.dropped {
		return nil, false
	}

	return append([]order.Order(nil), snap.orders...), true
}

func (s *Shell) logFailure(err error, owner string) {
	attrs := []interface{}{slog.String("owner", owner), slog.Any("error", err)}

	var serr *store.Error
	if errors.As(err, &serr) {
		attrs = append(attrs, slog.String("op", serr.Op))
	}

	s.logger.Error("repository call failed", attrs...)
}
