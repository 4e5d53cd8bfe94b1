package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/pavelpascari/ordermanager/internal/order"
	"github.com/pavelpascari/ordermanager/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// headerDateLayout renders the header date as a US short date.
const headerDateLayout = "1/2/2006"

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"currency": order.FormatCurrency,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return tmpl, nil
}

// SignInForm is the sign-in form state.
type SignInForm struct {
	Email string
	Error string
}

// OrderForm is the order entry form state. Values are echoed back when a
// submission is rejected or could not be stored.
type OrderForm struct {
	Values order.Order
	Errors order.FieldErrors
}

// Price renders the price input value, empty for a zero price.
func (f OrderForm) Price() string {
	if f.Values.Price.IsZero() {
		return ""
	}

	return f.Values.Price.String()
}

// Page is every HTML response. Without a session it renders the sign-in
// form, otherwise the dashboard.
type Page struct {
	Today      string
	Year       int
	Session    *session.Session
	SignIn     SignInForm
	Form       OrderForm
	View       order.View
	Sizes      []order.Size
	FitTypes   []order.FitType
	ExportCSV  template.URL
	ExportXLSX template.URL

	status   int
	redirect string
	cookies  []*http.Cookie
}

func (p Page) StatusCode() int { return p.status }

func (p Page) RedirectTo() (string, bool) { return p.redirect, p.redirect != "" }

func (p Page) Cookies() []*http.Cookie { return p.cookies }

func newPage(now time.Time, s *session.Session) Page {
	return Page{
		Today:    now.Format(headerDateLayout),
		Year:     now.Year(),
		Session:  s,
		Sizes:    order.Sizes(),
		FitTypes: order.FitTypes(),
		status:   http.StatusOK,
	}
}

func redirectHome(cookies ...*http.Cookie) Page {
	return Page{redirect: "/", cookies: cookies}
}

// withView fills the table and export links for f.
func (p Page) withView(v order.View) Page {
	p.View = v

	query := filterQuery(v.Filter)
	p.ExportCSV = template.URL("/orders/export.csv" + query)
	p.ExportXLSX = template.URL("/orders/export.xlsx" + query)

	return p
}

func filterQuery(f order.Filter) string {
	values := url.Values{}
	if f.OrderID != "" {
		values.Set("orderId", f.OrderID)
	}
	if f.StartDate != "" {
		values.Set("startDate", f.StartDate)
	}
	if f.EndDate != "" {
		values.Set("endDate", f.EndDate)
	}

	if len(values) == 0 {
		return ""
	}

	return "?" + values.Encode()
}
