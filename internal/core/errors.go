package core

import (
	"errors"
	"strings"
)

// Structural errors reject a whole batch before any row is processed.
// Their messages are shown to clients verbatim.
var (
	ErrEncoding      = errors.New("Problem with UTF-8 decoding.")
	ErrEmptyInput    = errors.New("CSV is empty.")
	ErrMissingHeader = errors.New("Missing header in CSV file")
	ErrNoRows        = errors.New("CSV doesn't contain any rows.")
)

// ErrFrameConsumed is yielded when Frame.Rows is ranged over a second time.
var ErrFrameConsumed = errors.New("csv frame: rows already consumed")

// ParseError reports a CSV framing failure from the underlying parser.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "CSV parsing error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// HeaderColumnsMissingError lists expected columns absent from a header
// that contains at least one expected column.
type HeaderColumnsMissingError struct {
	Missing []string
}

func (e *HeaderColumnsMissingError) Error() string {
	return "CSV header is missing columns: " + strings.Join(e.Missing, ", ")
}

// RowValidationError describes why a single row was rejected.
// Only the first failing field of a row is reported.
type RowValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *RowValidationError) Error() string {
	return e.Message
}

// IsStructural reports whether err rejects a batch as a whole.
func IsStructural(err error) bool {
	if err == nil {
		return false
	}
	var parseErr *ParseError
	var headerErr *HeaderColumnsMissingError
	switch {
	case errors.Is(err, ErrEncoding),
		errors.Is(err, ErrEmptyInput),
		errors.Is(err, ErrMissingHeader),
		errors.Is(err, ErrNoRows),
		errors.As(err, &parseErr),
		errors.As(err, &headerErr):
		return true
	}
	return false
}
