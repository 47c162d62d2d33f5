// Package templates renders the HTML pages of the web server.
//
// Pages are written in .templ files; run `templ generate` after editing
// them. Formatting helpers used by the pages live here.
package templates

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount the Czech way: two decimals rounded half
// to even, a space between thousands and a comma before the decimals.
// A nil amount renders as "".
//
//	1024.1   -> "1 024,10"
//	-5000000 -> "-5 000 000,00"
//	-0.001   -> "-0,00"
func FormatAmount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}

	// The sign follows d, not the rounded value: -0.001 renders as "-0,00".
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	fixed := d.Abs().StringFixedBank(2)

	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + groupThousands(whole) + "," + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

const timestampLayout = "2006-01-02 15:04:05 MST"

// formatTimestamp renders t in UTC.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
