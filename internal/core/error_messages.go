package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// # File Errors (FILE001-FILE099)
//
// The batch was rejected before any row was stored. The message is the
// decoder message, shown verbatim.
//
//	FILE001 - Encoding: body is not valid UTF-8
//	FILE002 - Empty: body has no non-whitespace content
//	FILE003 - Parse: CSV framing failed (bad quoting, NUL byte)
//	FILE004 - Missing header: no expected column in the first record
//	FILE005 - Missing columns: some expected columns are absent
//	FILE006 - No rows: header without data records
//	FILE007 - Too large: body exceeds the configured size limit
//	          Patterns: "request body too large"
//
// # Validation Errors (VAL001-VAL099)
//
// Row level. These never fail a batch; they appear when a single row is
// reported, for example by the CLI.
//
//	VAL001 - Missing field: a required field is absent or empty
//	VAL002 - Invalid timestamp: the timestamp is not ISO-8601
//	VAL003 - Invalid amount: the amount is not a decimal number
//
// # Store Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	        Patterns: "connection refused"
//	DB002 - Connection reset
//	        Patterns: "connection reset", "broken pipe"
//	DB003 - Deadlock or busy database
//	        Patterns: "deadlock", "database is locked"
//	DB004 - Schema missing: migrations have not been applied
//	        Patterns: "does not exist", "no such table"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Busy: every import slot is taken (ErrTooManyImports)
//	IMP002 - Timeout: the import ran past its deadline
//	IMP003 - Cancelled: the client went away
//	IMP004 - Not found: no cached result for the import id
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the server log for the underlying
// error, correlated by request_id.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns match lower-cased error text for errors without a typed
// mapping. The first match wins.
var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{
		Message: "CSV file exceeds the maximum upload size",
		Action:  "Split the file into smaller batches",
		Code:    "FILE007",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002",
	}},
	{"broken pipe", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB002",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB003",
	}},
	{"database is locked", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB003",
	}},
	{"no such table", UserMessage{
		Message: "Database schema is not initialised",
		Action:  "Run txingest migrate and retry",
		Code:    "DB004",
	}},
	{"does not exist", UserMessage{
		Message: "Database schema is not initialised",
		Action:  "Run txingest migrate and retry",
		Code:    "DB004",
	}},
}

var (
	busyMessage = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}
	timeoutMessage = UserMessage{
		Message: "Import timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "IMP002",
	}
	cancelledMessage = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "IMP003",
	}
	notFoundMessage = UserMessage{
		Message: "Import result not found",
		Action:  "Results expire after a while; import the file again to get a new result",
		Code:    "IMP004",
	}
)

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. Structural errors
// keep their own text; other errors are matched by type, then by pattern.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := structuralMessage(err); ok {
		return msg
	}

	var rowErr *RowValidationError
	if errors.As(err, &rowErr) {
		return rowMessage(rowErr)
	}

	switch {
	case errors.Is(err, ErrTooManyImports):
		return busyMessage
	case errors.Is(err, context.DeadlineExceeded):
		return timeoutMessage
	case errors.Is(err, context.Canceled):
		return cancelledMessage
	case errors.Is(err, ErrImportNotFound):
		return notFoundMessage
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func structuralMessage(err error) (UserMessage, bool) {
	var parseErr *ParseError
	var headerErr *HeaderColumnsMissingError

	switch {
	case errors.Is(err, ErrEncoding):
		return UserMessage{Message: ErrEncoding.Error(), Action: "Save the file as UTF-8", Code: "FILE001"}, true
	case errors.Is(err, ErrEmptyInput):
		return UserMessage{Message: ErrEmptyInput.Error(), Action: "Upload a CSV file with a header and data rows", Code: "FILE002"}, true
	case errors.As(err, &parseErr):
		return UserMessage{Message: parseErr.Error(), Action: "Check quoting around the reported line", Code: "FILE003"}, true
	case errors.Is(err, ErrMissingHeader):
		return UserMessage{Message: ErrMissingHeader.Error(), Action: headerAction(), Code: "FILE004"}, true
	case errors.As(err, &headerErr):
		return UserMessage{Message: headerErr.Error(), Action: headerAction(), Code: "FILE005"}, true
	case errors.Is(err, ErrNoRows):
		return UserMessage{Message: ErrNoRows.Error(), Action: "Add at least one data row below the header", Code: "FILE006"}, true
	}
	return UserMessage{}, false
}

func headerAction() string {
	return "The first line must name the columns: " + strings.Join(ExpectedHeader, ", ")
}

func rowMessage(e *RowValidationError) UserMessage {
	switch e.Field {
	case "timestamp":
		return UserMessage{Message: e.Message, Action: "Use an ISO-8601 timestamp such as 2024-01-31T12:00:00Z", Code: "VAL002"}
	case "amount":
		return UserMessage{Message: e.Message, Action: "Use a plain decimal number such as 1024.10", Code: "VAL003"}
	default:
		return UserMessage{Message: e.Message, Action: "Fill in every required column", Code: "VAL001"}
	}
}

// FormatUserError renders an error as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
