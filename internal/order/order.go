// Package order holds the order record, its validation rules and the
// filtered list view rendered by the dashboard and the exports.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date layout used for order dates and filters.
const DateLayout = "2006-01-02"

// Size is a garment size.
type Size string

// Supported sizes.
const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes lists every size in display order.
func Sizes() []Size {
	return []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}
}

// FitType is the cut of a garment.
type FitType string

// Supported fit types.
const (
	FitRegular     FitType = "Regular"
	FitSlim        FitType = "Slim"
	FitAthletic    FitType = "Athletic"
	FitRelaxed     FitType = "Relaxed"
	FitCompression FitType = "Compression"
)

// FitTypes lists every fit type in display order.
func FitTypes() []FitType {
	return []FitType{FitRegular, FitSlim, FitAthletic, FitRelaxed, FitCompression}
}

// Order is one purchase record as entered through the form.
type Order struct {
	ID           string          `json:"id" form:"id" validate:"notblank"`
	Date         string          `json:"date" form:"date" validate:"omitempty,isodate"`
	CustomerName string          `json:"customerName" form:"customerName" validate:"notblank"`
	Email        string          `json:"email" form:"email" validate:"notblank,looseemail"`
	Phone        string          `json:"phone" form:"phone"`
	ProductName  string          `json:"productName" form:"productName"`
	ProductCode  string          `json:"productCode" form:"productCode"`
	Size         Size            `json:"size" form:"size" validate:"omitempty,oneof=XS S M L XL XXL"`
	FitType      FitType         `json:"fitType" form:"fitType" validate:"omitempty,oneof=Regular Slim Athletic Relaxed Compression"`
	Color        string          `json:"color" form:"color"`
	Quantity     int             `json:"quantity" form:"quantity" validate:"gte=1"`
	Price        decimal.Decimal `json:"price" form:"price" validate:"gt=0"`
}

// New returns an empty order carrying the creation defaults: today's date
// and a quantity of one.
func New(now time.Time) Order {
	return Order{
		Date:     now.Format(DateLayout),
		Quantity: 1,
	}
}

// LineTotal is price times quantity. It is never stored.
func (o Order) LineTotal() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// WithDefaults fills the fields the form may leave unset.
func (o Order) WithDefaults(now time.Time) Order {
	if o.Date == "" {
		o.Date = now.Format(DateLayout)
	}
	if o.Quantity == 0 {
		o.Quantity = 1
	}

	return o
}
