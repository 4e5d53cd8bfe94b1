// Package sqlstore is a database/sql Repository for PostgreSQL (lib/pq) and
// SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"    // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/store"
)

// Dialect selects placeholder style and DDL.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var columns = []string{
	"id", "order_id", "date", "customer_name", "email", "phone",
	"product_name", "product_code", "size", "fit_type", "color",
	"quantity", "price", "created_at", "user_id",
}

var schema = map[Dialect][]string{
	Postgres: {
		`CREATE TABLE IF NOT EXISTS orders (
			id            UUID PRIMARY KEY,
			order_id      TEXT NOT NULL,
			date          DATE NOT NULL,
			customer_name TEXT NOT NULL,
			email         TEXT NOT NULL,
			phone         TEXT,
			product_name  TEXT,
			product_code  TEXT,
			size          TEXT,
			fit_type      TEXT,
			color         TEXT,
			quantity      INTEGER DEFAULT 1,
			price         NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			user_id       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS orders (
			id            TEXT PRIMARY KEY,
			order_id      TEXT NOT NULL,
			date          TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			email         TEXT NOT NULL,
			phone         TEXT,
			product_name  TEXT,
			product_code  TEXT,
			size          TEXT,
			fit_type      TEXT,
			color         TEXT,
			quantity      INTEGER DEFAULT 1,
			price         NUMERIC NOT NULL CHECK (price >= 0),
			created_at    DATETIME NOT NULL,
			user_id       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	},
}

// Store is a SQL-backed Repository.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string

	listQuery   string
	insertQuery string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock that stamps created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides row id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// Open connects with the dialect's driver.
func Open(dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	if _, ok := schema[dialect]; !ok {
		return nil, fmt.Errorf("sqlstore: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	return New(db, dialect, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.listQuery = "SELECT " + strings.Join(columns, ", ") +
		" FROM orders WHERE user_id = " + s.placeholder(1) +
		" ORDER BY created_at DESC"

	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = s.placeholder(i + 1)
	}
	s.insertQuery = "INSERT INTO orders (" + strings.Join(columns, ", ") +
		") VALUES (" + strings.Join(ph, ", ") + ")"

	return s
}

var _ store.Repository = (*Store)(nil)

// Migrate creates the orders table and its index when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}

	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListOrders implements store.Repository.
func (s *Store) ListOrders(ctx context.Context, ownerID string) ([]order.Row, error) {
	if ownerID == "" {
		return nil, store.Wrap(store.OpList, store.ErrMissingOwner)
	}

	rows, err := s.db.QueryContext(ctx, s.listQuery, ownerID)
	if err != nil {
		return nil, store.Wrap(store.OpList, err)
	}
	defer rows.Close()

	var out []order.Row
	for rows.Next() {
		var (
			r       order.Row
			date    interface{}
			created time.Time
		)

		err := rows.Scan(
			&r.ID, &r.OrderID, &date, &r.CustomerName, &r.Email, &r.Phone,
			&r.ProductName, &r.ProductCode, &r.Size, &r.FitType, &r.Color,
			&r.Quantity, &r.Price, &created, &r.UserID,
		)
		if err != nil {
			return nil, store.Wrap(store.OpList, fmt.Errorf("scan: %w", err))
		}

		r.Date = calendarDate(date)
		r.CreatedAt = &created
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, store.Wrap(store.OpList, err)
	}

	return out, nil
}

// InsertOrder implements store.Repository.
func (s *Store) InsertOrder(ctx context.Context, r order.Row) error {
	if r.UserID == "" {
		return store.Wrap(store.OpInsert, store.ErrMissingOwner)
	}

	if r.ID == "" {
		r.ID = s.newID()
	}

	created := s.now().UTC()
	if r.CreatedAt != nil {
		created = r.CreatedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, s.insertQuery,
		r.ID, r.OrderID, r.Date, r.CustomerName, r.Email, r.Phone,
		r.ProductName, r.ProductCode, r.Size, r.FitType, r.Color,
		r.Quantity, r.Price, created, r.UserID,
	)

	return store.Wrap(store.OpInsert, err)
}

func (s *Store) placeholder(n int) string {
	if s.dialect == Postgres {
		return fmt.Sprintf("$%d", n)
	}

	return "?"
}

// calendarDate normalizes DATE values, which lib/pq returns as time.Time
// and sqlite as text.
func calendarDate(v interface{}) string {
	switch d := v.(type) {
	case time.Time:
		return d.Format(order.DateLayout)
	case []byte:
		return truncateDate(string(d))
	case string:
		return truncateDate(d)
	case nil:
		return ""
	default:
		return truncateDate(fmt.Sprint(d))
	}
}

func truncateDate(s string) string {
	if len(s) > len(order.DateLayout) {
		if _, err := time.Parse(order.DateLayout, s[:len(order.DateLayout)]); err == nil {
			return s[:len(order.DateLayout)]
		}
	}

	return s
}
