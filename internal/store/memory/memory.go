// Package memory is an in-process Repository used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/store"
)

// Store keeps rows in memory.
type Store struct {
	mu   sync.RWMutex
	rows []order.Row
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock that stamps created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

var _ store.Repository = (*Store)(nil)

// ListOrders implements store.Repository.
func (s *Store) ListOrders(ctx context.Context, ownerID string) ([]order.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, store.Wrap(store.OpList, err)
	}
	if ownerID == "" {
		return nil, store.Wrap(store.OpList, store.ErrMissingOwner)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Latest insert first so rows sharing a created_at stay newest first.
	out := make([]order.Row, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		if r := s.rows[i]; r.UserID == ownerID {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(*out[j].CreatedAt)
	})

	return out, nil
}

// InsertOrder implements store.Repository.
func (s *Store) InsertOrder(ctx context.Context, row order.Row) error {
	if err := ctx.Err(); err != nil {
		return store.Wrap(store.OpInsert, err)
	}
	if row.UserID == "" {
		return store.Wrap(store.OpInsert, store.ErrMissingOwner)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt == nil {
		created := s.now()
		row.CreatedAt = &created
	}

	s.rows = append(s.rows, row)

	return nil
}
