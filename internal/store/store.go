// Package store defines the persistence boundary for orders. Adapters live
// in subpackages: memory, sqlstore and postgrest.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelpascari/ordermanager/internal/order"
)

// Repository persists and lists order rows. Ownership is enforced by the
// adapter: ListOrders only ever returns rows created by ownerID.
type Repository interface {
	// ListOrders returns the owner's rows, newest first by creation time.
	ListOrders(ctx context.Context, ownerID string) ([]order.Row, error)
	// InsertOrder durably stores a row.
	InsertOrder(ctx context.Context, row order.Row) error
}

// Operation names used in Error.
const (
	OpList   = "list orders"
	OpInsert = "insert order"
)

// ErrMissingOwner is returned when a row or listing has no owner identity.
var ErrMissingOwner = errors.New("owner identity is required")

// Error is a repository failure. It is logged by callers and never shown
// to end users.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err and an *Error otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var serr *Error
	if errors.As(err, &serr) {
		return err
	}

	return &Error{Op: op, Err: err}
}
