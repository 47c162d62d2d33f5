package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/txingest/internal/config"
	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/JonMunkholm/txingest/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const csvHeader = "reference,timestamp,amount,currency,description\n"

func testConfig(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"DATABASE_DRIVER":    "memory",
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range overrides {
		env[k] = v
	}
	cfg, err := config.LoadFrom(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, st core.Store, reader core.TransactionReader) *Server {
	t.Helper()
	svc := core.NewService(st, reader, core.ServiceConfig{
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		Timeout:       cfg.Import.Timeout,
		ResultTTL:     cfg.Import.ResultTTL,
	})
	srv, err := NewServer(svc, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func memoryServer(t *testing.T) *Server {
	t.Helper()
	mem := store.NewMemory()
	return newTestServer(t, testConfig(t, nil), mem, mem)
}

func postCSV(srv *Server, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleImport_Statuses(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantBody    string
	}{
		{
			name:        "full success",
			contentType: "text/csv",
			body:        csvHeader + "T1,2024-01-01T00:00:00Z,10,USD,a\nT2,2024-01-02T00:00:00Z,-5,USD,b\n",
			wantStatus:  http.StatusCreated,
			wantBody:    "Processed 2 (created 2, errors 0, duplicates 0)",
		},
		{
			name:        "partial success",
			contentType: "text/csv; charset=utf-8",
			body:        csvHeader + "T1,2024-01-01T00:00:00Z,10,USD,a\nT1,2024-01-02T00:00:00Z,11,USD,b\nT3,bad,1,USD,c\n",
			wantStatus:  http.StatusMultiStatus,
			wantBody:    "Processed 3 (created 1, errors 1, duplicates 1)",
		},
		{
			name:        "content type is case insensitive",
			contentType: "TEXT/CSV",
			body:        csvHeader + "T1,2024-01-01T00:00:00Z,10,USD,a\n",
			wantStatus:  http.StatusCreated,
		},
		{
			name:        "wrong content type",
			contentType: "application/json",
			body:        csvHeader + "T1,2024-01-01T00:00:00Z,10,USD,a\n",
			wantStatus:  http.StatusBadRequest,
			wantBody:    "Content-Type must be text/csv",
		},
		{
			name:        "missing content type",
			body:        csvHeader,
			wantStatus:  http.StatusBadRequest,
			wantBody:    "Content-Type must be text/csv",
		},
		{
			name:        "empty body",
			contentType: "text/csv",
			wantStatus:  http.StatusBadRequest,
			wantBody:    "No data inside CSV file. File looks empty.",
		},
		{
			name:        "whitespace body",
			contentType: "text/csv",
			body:        " \n\t\n",
			wantStatus:  http.StatusBadRequest,
			wantBody:    "CSV is empty.",
		},
		{
			name:        "invalid utf-8",
			contentType: "text/csv",
			body:        "reference\xff\n",
			wantStatus:  http.StatusBadRequest,
			wantBody:    "Problem with UTF-8 decoding.",
		},
		{
			name:        "no expected columns",
			contentType: "text/csv",
			body:        "foo,bar\n1,2\n",
			wantStatus:  http.StatusBadRequest,
			wantBody:    "Missing header in CSV file",
		},
		{
			name:        "some columns missing",
			contentType: "text/csv",
			body:        "reference,amount\nT1,10\n",
			wantStatus:  http.StatusBadRequest,
			wantBody:    "CSV header is missing columns: timestamp, currency, description",
		},
		{
			name:        "header only",
			contentType: "text/csv",
			body:        csvHeader,
			wantStatus:  http.StatusBadRequest,
			wantBody:    "CSV doesn't contain any rows.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := memoryServer(t)
			rec := postCSV(srv, tt.contentType, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		})
	}
}

func TestHandleImport_ParseErrorIsBadRequest(t *testing.T) {
	srv := memoryServer(t)
	rec := postCSV(srv, "text/csv", csvHeader+"T1,\"2024-01-01,10,USD,a\n")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "CSV parsing error: "), rec.Body.String())
	assert.Equal(t, "FILE003", rec.Header().Get("X-Error-Code"))
}

func TestHandleImport_BodyTooLarge(t *testing.T) {
	cfg := testConfig(t, map[string]string{"IMPORT_MAX_BODY_SIZE": "64B"})
	mem := store.NewMemory()
	srv := newTestServer(t, cfg, mem, mem)

	body := csvHeader + strings.Repeat("T1,2024-01-01T00:00:00Z,10,USD,a\n", 10)
	rec := postCSV(srv, "text/csv", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE007", rec.Header().Get("X-Error-Code"))

	txs, err := mem.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestHandleImport_ReportRetrievable(t *testing.T) {
	srv := memoryServer(t)
	rec := postCSV(srv, "text/csv", csvHeader+"T1,2024-01-01T00:00:00Z,10,USD,a\n")
	require.Equal(t, http.StatusCreated, rec.Code)

	id := rec.Header().Get("X-Import-ID")
	require.NotEmpty(t, id)

	res := get(srv, "/api/imports/"+id)
	require.Equal(t, http.StatusOK, res.Code)

	var report struct {
		ID     string            `json:"id"`
		Status string            `json:"status"`
		Result core.ImportResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &report))
	assert.Equal(t, id, report.ID)
	assert.Equal(t, "full_success", report.Status)
	assert.Equal(t, core.ImportResult{Processed: 1, Created: 1}, report.Result)
}

func TestHandleImportResult_NotFound(t *testing.T) {
	srv := memoryServer(t)
	rec := get(srv, "/api/imports/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "IMP004", resp.Code)
}

func TestHandleImport_JSONResponse(t *testing.T) {
	srv := memoryServer(t)
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("foo\n1\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Missing header in CSV file", resp.Message)
	assert.Equal(t, "FILE004", resp.Code)
}

// failingStore fails every write like an unreachable database.
type failingStore struct{}

func (failingStore) GetOrCreate(context.Context, string, core.TransactionDefaults) (core.StoredTransaction, bool, error) {
	return core.StoredTransaction{}, false, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
}

func TestHandleImport_StoreFailure(t *testing.T) {
	srv := newTestServer(t, testConfig(t, nil), failingStore{}, store.NewMemory())
	rec := postCSV(srv, "text/csv", csvHeader+"T1,2024-01-01T00:00:00Z,10,USD,a\n")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DB001", rec.Header().Get("X-Error-Code"))
	assert.NotContains(t, rec.Body.String(), "127.0.0.1")
}

// blockingStore holds every write until release is closed.
type blockingStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) GetOrCreate(ctx context.Context, ref string, d core.TransactionDefaults) (core.StoredTransaction, bool, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Memory.GetOrCreate(ctx, ref, d)
}

func TestHandleImport_TooManyImports(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"IMPORT_MAX_CONCURRENT": "1",
		"IMPORT_MAX_WAIT_TIME":  "20ms",
	})
	bs := &blockingStore{
		Memory:  store.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv := newTestServer(t, cfg, bs, bs.Memory)
	body := csvHeader + "T1,2024-01-01T00:00:00Z,10,USD,a\n"

	first := make(chan int, 1)
	go func() { first <- postCSV(srv, "text/csv", body).Code }()

	select {
	case <-bs.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first import never reached the store")
	}

	rec := postCSV(srv, "text/csv", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "IMP001", rec.Header().Get("X-Error-Code"))

	close(bs.release)
	assert.Equal(t, http.StatusCreated, <-first)
}

func TestHandleTransactions_MarksBiggestIncome(t *testing.T) {
	mem := store.NewMemory()
	srv := newTestServer(t, testConfig(t, nil), mem, mem)

	body := csvHeader +
		"T1,2024-01-01T00:00:00Z,1024.1,CZK,rent\n" +
		"T2,2024-01-02T00:00:00Z,-50,CZK,<b>food</b>\n" +
		"T3,2024-01-03T00:00:00Z,1024.10,CZK,tie\n" +
		"T4,2024-01-04T00:00:00Z,3,CZK,small\n"
	require.Equal(t, http.StatusCreated, postCSV(srv, "text/csv", body).Code)

	for _, path := range []string{"/", "/transactions"} {
		rec := get(srv, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

		html := rec.Body.String()
		assert.Equal(t, 2, strings.Count(html, `class="biggest-income"`), path)
		assert.Contains(t, html, "1 024,10")
		assert.Contains(t, html, "-50,00")
		assert.Contains(t, html, "&lt;b&gt;food&lt;/b&gt;")
		assert.NotContains(t, html, "<b>food</b>")

		// Newest first.
		assert.Less(t, strings.Index(html, "T4"), strings.Index(html, "T1"))
	}
}

func TestHandleTransactions_Empty(t *testing.T) {
	rec := get(memoryServer(t), "/transactions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No transactions yet.")
	assert.NotContains(t, rec.Body.String(), `class="biggest-income"`)
}

// brokenReader fails every query.
type brokenReader struct{}

func (brokenReader) List(context.Context) ([]core.StoredTransaction, error) {
	return nil, errors.New("no such table: transactions")
}

func (brokenReader) MaxPositiveAmount(context.Context) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (brokenReader) ListByAmount(context.Context, decimal.Decimal) ([]core.StoredTransaction, error) {
	return nil, nil
}

func TestHandleTransactions_StoreFailure(t *testing.T) {
	srv := newTestServer(t, testConfig(t, nil), store.NewMemory(), brokenReader{})
	rec := get(srv, "/transactions")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "DB004", rec.Header().Get("X-Error-Code"))
}

func TestHandleHealth(t *testing.T) {
	rec := get(memoryServer(t), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Imports.MaxConcurrent)
	assert.Equal(t, 4, resp.Imports.Available)
}

func TestSecurityHeaders(t *testing.T) {
	rec := get(memoryServer(t), "/healthz")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	cfg := testConfig(t, map[string]string{"SECURITY_ENABLE_CSP": "false"})
	mem := store.NewMemory()
	rec = get(newTestServer(t, cfg, mem, mem), "/healthz")
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"RATE_LIMIT_ENABLED":             "true",
		"RATE_LIMIT_REQUESTS_PER_MINUTE": "1",
		"RATE_LIMIT_BURST":               "2",
	})
	mem := store.NewMemory()
	srv := newTestServer(t, cfg, mem, mem)

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("192.0.2.1:1001").Code)

	limited := send("192.0.2.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, send("192.0.2.2:1000").Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter(60, 1)
	defer rl.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _ := rl.reserve("a")
	require.True(t, ok)
	ok, wait := rl.reserve("a")
	assert.False(t, ok)
	assert.Positive(t, wait)

	now = now.Add(visitorTTL + time.Second)
	rl.cleanup()

	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}
