// Package export serializes a filtered order history into downloadable
// tabular files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pavelpascari/ordermanager/internal/order"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// SheetName is the worksheet that holds the orders in XLSX exports.
const SheetName = "Orders"

// ErrUnknownFormat is returned for formats other than CSV and XLSX.
var ErrUnknownFormat = errors.New("unknown export format")

// Columns is the fixed header row shared by every format.
var Columns = []string{
	"Order ID",
	"Date",
	"Customer Name",
	"Email",
	"Phone",
	"Product Name",
	"Product Code",
	"Size",
	"Fit Type",
	"Color",
	"Qty",
	"Price",
	"Total Price",
}

// ParseFormat maps a file extension (with or without the dot) to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(s, "."))) {
	case CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case CSV:
		return "text/csv; charset=utf-8"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Record renders one order as a row of cells in column order.
func Record(o order.Order) []string {
	return []string{
		o.ID,
		o.Date,
		o.CustomerName,
		o.Email,
		o.Phone,
		o.ProductName,
		o.ProductCode,
		string(o.Size),
		string(o.FitType),
		o.Color,
		strconv.Itoa(o.Quantity),
		order.FormatCurrency(o.Price),
		order.FormatCurrency(o.LineTotal()),
	}
}

// Exporter writes order histories and names the resulting files.
type Exporter struct {
	now func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the clock used to date-stamp filenames.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Filename returns orders_YYYY-MM-DD.<ext> for the current date.
func (e *Exporter) Filename(f Format) string {
	return "orders_" + e.now().Format(order.DateLayout) + "." + string(f)
}

// Write serializes orders in the requested format. An empty slice still
// produces a valid file holding only the header row.
func (e *Exporter) Write(w io.Writer, f Format, orders []order.Order) error {
	switch f {
	case CSV:
		return WriteCSV(w, orders)
	case XLSX:
		return WriteXLSX(w, orders)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// WriteCSV writes a comma-separated file with a header row.
func WriteCSV(w io.Writer, orders []order.Order) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, o := range orders {
		if err := cw.Write(Record(o)); err != nil {
			return fmt.Errorf("write csv row %q: %w", o.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}

// WriteXLSX writes a workbook with a single "Orders" sheet.
func WriteXLSX(w io.Writer, orders []order.Order) (err error) {
	book := excelize.NewFile()
	defer func() {
		if cerr := book.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := book.SetSheetName(book.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	sw, err := book.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open sheet writer: %w", err)
	}

	if err := sw.SetRow("A1", cells(Columns)); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}

	for i, o := range orders {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("locate row %d: %w", i+2, err)
		}

		row := cells(Record(o))
		row[10] = o.Quantity

		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write xlsx row %q: %w", o.ID, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}

	return nil
}

func cells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
