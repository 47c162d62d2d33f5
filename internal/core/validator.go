package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// requiredFields are checked in this order; the first missing one is reported.
var requiredFields = []string{"reference", "timestamp", "amount", "currency"}

// timestampLayouts are tried in order by ParseTimestamp. Layouts without a
// zone parse as UTC. Fractional seconds are accepted after the seconds field
// by time.Parse even though no layout spells them out.
var timestampLayouts = buildTimestampLayouts()

func buildTimestampLayouts() []string {
	var layouts []string
	for _, sep := range []string{"T", " "} {
		for _, clock := range []string{"15:04:05", "15:04"} {
			for _, zone := range []string{"Z07:00", "Z0700", "Z07", ""} {
				layouts = append(layouts, "2006-01-02"+sep+clock+zone)
			}
		}
	}
	return append(layouts, time.DateOnly)
}

// ValidateRow converts a raw row into a ValidatedRecord. It stops at the
// first failing field and returns a *RowValidationError describing it.
func ValidateRow(row RawRow) (ValidatedRecord, error) {
	for _, name := range requiredFields {
		if row[name] == "" {
			return ValidatedRecord{}, &RowValidationError{
				Field:   name,
				Message: "Missing field: " + name,
			}
		}
	}

	rawTimestamp := row["timestamp"]
	ts, err := ParseTimestamp(rawTimestamp)
	if err != nil {
		return ValidatedRecord{}, &RowValidationError{
			Field:   "timestamp",
			Value:   rawTimestamp,
			Message: "Invalid timestamp: " + rawTimestamp,
		}
	}

	rawAmount := row["amount"]
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return ValidatedRecord{}, &RowValidationError{
			Field:   "amount",
			Value:   rawAmount,
			Message: "Invalid amount: " + rawAmount,
		}
	}

	return ValidatedRecord{
		Reference:   row["reference"],
		Timestamp:   ts,
		Amount:      amount,
		Currency:    row["currency"],
		Description: row["description"],
	}, nil
}

// ParseTimestamp parses an ISO-8601 date-time. Values without an offset
// are taken as UTC; a bare date is midnight UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// Amount bounds: at most maxAmountIntegerDigits digits before the decimal
// point and maxAmountScale significant digits after it. Trailing zeros of
// the fraction do not count, so "10.000000000" is accepted.
const (
	maxAmountIntegerDigits = 18
	maxAmountScale         = 8
)

// ParseAmount parses an exact base-10 decimal. Surrounding whitespace is
// ignored. Values outside the amount bounds are rejected, exponent
// notation included, so a short input can never expand into a huge number.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsZero() {
		// "0e999999999" would otherwise be rescaled when formatted.
		return decimal.Zero, nil
	}
	if !amountInBounds(d) {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: out of range", s)
	}
	return d, nil
}

// amountInBounds inspects coefficient and exponent only; it never rescales d.
func amountInBounds(d decimal.Decimal) bool {
	digits := strings.TrimPrefix(d.Coefficient().String(), "-")
	exp := int64(d.Exponent())

	if exp < 0 {
		zeros := int64(len(digits) - len(strings.TrimRight(digits, "0")))
		drop := min(zeros, -exp)
		digits = digits[:int64(len(digits))-drop]
		exp += drop
	}

	if exp < 0 && -exp > maxAmountScale {
		return false
	}
	return int64(len(digits))+exp <= maxAmountIntegerDigits
}
