package order

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency renders an amount as US dollars, e.g. "$1,234.50". The
// amount is rounded to cents without passing through float64.
func FormatCurrency(amount decimal.Decimal) string {
	rounded := amount.Round(2)

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}

	whole, cents, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")

	return sign + "$" + groupThousands(whole) + "." + cents
}

// groupThousands inserts separators into a string of decimal digits.
func groupThousands(digits string) string {
	if n, err := strconv.ParseUint(digits, 10, 64); err == nil {
		return usd.Sprint(number.Decimal(n))
	}

	// Beyond uint64 x/text has no exact input type.
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}

	var b strings.Builder
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}

	return b.String()
}
