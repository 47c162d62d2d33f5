package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/JonMunkholm/txingest/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleImport processes a CSV body posted to /transactions.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "text/csv") {
		s.respondError(w, r, errContentType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("read request body: %w", err)
		}
		s.respondError(w, r, err)
		return
	}
	if len(body) == 0 {
		s.respondError(w, r, errEmptyBody)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	report, err := s.service.Import(ctx, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("X-Import-ID", report.ID)
	if wantsJSON(r) {
		writeJSON(w, r, report.HTTPStatus(), report)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(report.HTTPStatus())
	io.WriteString(w, report.Message)
}

// handleTransactions renders the stored transactions page.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	listing, err := s.service.Transactions(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.TransactionsPage(listing).Render(r.Context(), w); err != nil {
		slogFor(r).Error("render transactions", "error", err)
	}
}

// handleImportResult returns a recent import report.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.ImportResult(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

type healthResponse struct {
	Status  string                   `json:"status"`
	Error   string                   `json:"error,omitempty"`
	Imports core.ImportLimiterStatus `json:"imports"`
}

// handleHealth reports store reachability and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Imports: s.service.LimiterStatus()}
	status := http.StatusOK

	if err := s.service.Ping(r.Context()); err != nil {
		slogFor(r).Error("health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = core.MapError(err).Message
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
