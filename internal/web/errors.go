package web

// errors.go turns handler errors into responses.
//
// Every error is mapped through core.MapError, logged with its technical
// detail and support code, and written as plain text by default. Clients
// that ask for JSON (or call /api/ routes) get an ErrorResponse instead.
// Structural CSV errors keep their verbatim message in both formats.

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/txingest/internal/core"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// requestError is a boundary check failure with a fixed message.
type requestError struct {
	message string
	code    string
}

func (e *requestError) Error() string { return e.message }

var (
	errContentType = &requestError{message: "Content-Type must be text/csv", code: "REQ001"}
	errEmptyBody   = &requestError{message: "No data inside CSV file. File looks empty.", code: "REQ002"}
)

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var reqErr *requestError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &reqErr), core.IsStructural(err):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrImportNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// userMessage maps err for display, keeping boundary messages as written.
func userMessage(err error) core.UserMessage {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return core.UserMessage{Message: reqErr.message, Code: reqErr.code}
	}
	return core.MapError(err)
}

// respondError logs err and writes the user-facing message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := userMessage(err)

	logger := slogFor(r).With(
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request error")
	} else {
		logger.Warn("request rejected")
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.Import.MaxWaitTime.Seconds())+1))
	}
	w.Header().Set("X-Error-Code", msg.Code)

	if wantsJSON(r) {
		writeJSON(w, r, status, ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg.Message))
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
