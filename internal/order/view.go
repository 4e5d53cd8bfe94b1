package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Filter narrows the order history. Empty fields impose no constraint.
type Filter struct {
	OrderID   string `query:"orderId" json:"orderId"`
	StartDate string `query:"startDate" json:"startDate" validate:"omitempty,isodate"`
	EndDate   string `query:"endDate" json:"endDate" validate:"omitempty,isodate"`
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.OrderID == "" && f.StartDate == "" && f.EndDate == ""
}

// Match reports whether o passes the filter. Date bounds are inclusive and
// compared as calendar dates; an order whose date does not parse never
// satisfies a non-empty bound.
func (f Filter) Match(o Order) bool {
	if !strings.Contains(strings.ToLower(o.ID), strings.ToLower(f.OrderID)) {
		return false
	}

	if f.StartDate == "" && f.EndDate == "" {
		return true
	}

	date, err := time.Parse(DateLayout, o.Date)
	if err != nil {
		return false
	}

	if f.StartDate != "" {
		start, err := time.Parse(DateLayout, f.StartDate)
		if err == nil && date.Before(start) {
			return false
		}
	}

	if f.EndDate != "" {
		end, err := time.Parse(DateLayout, f.EndDate)
		if err == nil && date.After(end) {
			return false
		}
	}

	return true
}

// Apply returns the orders that pass the filter, in input order.
func Apply(orders []Order, f Filter) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o) {
			out = append(out, o)
		}
	}

	return out
}

// TotalValue sums the line totals of orders.
func TotalValue(orders []Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.LineTotal())
	}

	return total
}

// View is the filtered order history as shown in the table.
type View struct {
	Filter Filter          `json:"filter"`
	Orders []Order         `json:"orders"`
	Total  decimal.Decimal `json:"totalValue"`
	Shown  int             `json:"shown"`
	Count  int             `json:"count"`
}

// NewView filters all and computes the aggregate total of the result.
func NewView(all []Order, f Filter) View {
	filtered := Apply(all, f)

	return View{
		Filter: f,
		Orders: filtered,
		Total:  TotalValue(filtered),
		Shown:  len(filtered),
		Count:  len(all),
	}
}
