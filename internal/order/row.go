package order

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is the repository wire shape of an order. Optional columns are
// nullable and owner-scoped rows carry the creator's identity.
type Row struct {
	ID           string          `json:"id,omitempty"`
	OrderID      string          `json:"order_id"`
	Date         string          `json:"date"`
	CustomerName string          `json:"customer_name"`
	Email        string          `json:"email"`
	Phone        *string         `json:"phone"`
	ProductName  *string         `json:"product_name"`
	ProductCode  *string         `json:"product_code"`
	Size         *string         `json:"size"`
	FitType      *string         `json:"fit_type"`
	Color        *string         `json:"color"`
	Quantity     Quantity        `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	UserID       string          `json:"user_id"`
}

// ToRow converts an order into the row inserted on behalf of ownerID.
func ToRow(o Order, ownerID string) Row {
	return Row{
		OrderID:      o.ID,
		Date:         o.Date,
		CustomerName: o.CustomerName,
		Email:        o.Email,
		Phone:        nullable(o.Phone),
		ProductName:  nullable(o.ProductName),
		ProductCode:  nullable(o.ProductCode),
		Size:         nullable(string(o.Size)),
		FitType:      nullable(string(o.FitType)),
		Color:        nullable(o.Color),
		Quantity:     Quantity(o.Quantity),
		Price:        o.Price,
		UserID:       ownerID,
	}
}

// FromRow converts a stored row back into an order. Null optional fields
// become empty strings and a missing or non-positive quantity becomes 1.
func FromRow(r Row) Order {
	return Order{
		ID:           r.OrderID,
		Date:         r.Date,
		CustomerName: r.CustomerName,
		Email:        r.Email,
		Phone:        deref(r.Phone),
		ProductName:  deref(r.ProductName),
		ProductCode:  deref(r.ProductCode),
		Size:         Size(deref(r.Size)),
		FitType:      FitType(deref(r.FitType)),
		Color:        deref(r.Color),
		Quantity:     r.Quantity.Int(),
		Price:        r.Price,
	}
}

// FromRows converts rows preserving their order.
func FromRows(rows []Row) []Order {
	orders := make([]Order, len(rows))
	for i, r := range rows {
		orders[i] = FromRow(r)
	}

	return orders
}

func nullable(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// Quantity is a leniently decoded item count. Null, non-numeric and
// non-positive values all read back as 1.
type Quantity int

// Int returns the count, substituting 1 for unusable values.
func (q Quantity) Int() int {
	if q <= 0 {
		return 1
	}

	return int(q)
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		*q = 0
		return nil //nolint:nilerr // unusable quantities read back as the default
	}

	*q = quantityOf(v)

	return nil
}

// Scan implements sql.Scanner.
func (q *Quantity) Scan(src interface{}) error {
	*q = quantityOf(src)
	return nil
}

// Value implements driver.Valuer.
func (q Quantity) Value() (driver.Value, error) {
	return int64(q), nil
}

func quantityOf(v interface{}) Quantity {
	switch n := v.(type) {
	case nil:
		return 0
	case int64:
		return Quantity(n)
	case int:
		return Quantity(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return Quantity(n)
	case []byte:
		return parseQuantity(string(n))
	case string:
		return parseQuantity(n)
	default:
		return parseQuantity(fmt.Sprint(n))
	}
}

func parseQuantity(s string) Quantity {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return Quantity(f)
}
