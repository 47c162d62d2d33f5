package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/txingest/internal/logging"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// ErrImportNotFound is returned for an unknown or expired import id.
var ErrImportNotFound = errors.New("import not found")

// DefaultImportTimeout bounds a single batch when ServiceConfig.Timeout is unset.
const DefaultImportTimeout = 2 * time.Minute

// DefaultResultTTL is how long finished reports stay retrievable.
const DefaultResultTTL = 15 * time.Minute

// ServiceConfig tunes a Service. Zero values select the defaults.
type ServiceConfig struct {
	MaxConcurrent int
	MaxWait       time.Duration
	Timeout       time.Duration
	ResultTTL     time.Duration
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service runs imports and serves the stored transactions.
type Service struct {
	store   Store
	reader  TransactionReader
	limiter *ImportLimiter
	results *cache.Cache
	timeout time.Duration
	now     func() time.Time
}

// ImportReport is the outcome of one Service.Import call.
type ImportReport struct {
	ID         string       `json:"id"`
	Status     Status       `json:"status"`
	Message    string       `json:"message"`
	Result     ImportResult `json:"result"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// HTTPStatus returns 201 for a full success and 207 otherwise.
func (r *ImportReport) HTTPStatus() int {
	return Report{Status: r.Status}.HTTPStatus()
}

// Listing is the data behind the transactions page.
type Listing struct {
	Transactions []StoredTransaction
	MaxIncome    decimal.Decimal
	HasMaxIncome bool

	biggest map[uuid.UUID]struct{}
}

// IsBiggestIncome reports whether id carries the largest positive amount.
// Ties are all reported.
func (l Listing) IsBiggestIncome(id uuid.UUID) bool {
	_, ok := l.biggest[id]
	return ok
}

// NewService creates a Service over store and reader, which are usually
// the same value.
func NewService(store Store, reader TransactionReader, cfg ServiceConfig) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}

	return &Service{
		store:   store,
		reader:  reader,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		results: cache.New(ttl, 2*ttl),
		timeout: timeout,
		now:     time.Now,
	}
}

// Import decodes body and imports its rows. Structural errors are returned
// unwrapped so callers can show their message verbatim.
func (s *Service) Import(ctx context.Context, body []byte) (*ImportReport, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire import slot: %w", err)
	}
	defer s.limiter.Release()

	id := uuid.NewString()
	logger := logging.WithFields(ctx,
		"import_id", id,
		"ip", ClientIPFromContext(ctx),
		"user_agent", UserAgentFromContext(ctx),
		"bytes", len(body),
	)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.now()

	frame, err := Decode(body)
	if err != nil {
		logger.Warn("batch rejected", "error", err)
		return nil, err
	}

	result, err := NewImporter(s.store, logger).ImportAll(ctx, frame.Rows())
	if err != nil {
		if IsStructural(err) {
			return nil, err
		}
		return nil, fmt.Errorf("import %s: %w", id, err)
	}

	report := Classify(result)
	ir := &ImportReport{
		ID:         id,
		Status:     report.Status,
		Message:    report.Message,
		Result:     result,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	s.results.Set(id, ir, cache.DefaultExpiration)

	return ir, nil
}

// ImportResult returns a recent report by id.
func (s *Service) ImportResult(id string) (*ImportReport, error) {
	v, ok := s.results.Get(id)
	if !ok {
		return nil, ErrImportNotFound
	}
	return v.(*ImportReport), nil
}

// Transactions returns every stored transaction, newest first, with the
// largest positive amount marked.
func (s *Service) Transactions(ctx context.Context) (Listing, error) {
	txs, err := s.reader.List(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("list transactions: %w", err)
	}

	listing := Listing{Transactions: txs, biggest: map[uuid.UUID]struct{}{}}

	maxAmount, ok, err := s.reader.MaxPositiveAmount(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("max positive amount: %w", err)
	}
	if !ok {
		return listing, nil
	}
	listing.MaxIncome = maxAmount
	listing.HasMaxIncome = true

	top, err := s.reader.ListByAmount(ctx, maxAmount)
	if err != nil {
		return Listing{}, fmt.Errorf("list by amount: %w", err)
	}
	for _, tx := range top {
		listing.biggest[tx.ID] = struct{}{}
	}

	return listing, nil
}

// Ping checks the store when it supports health checks.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
