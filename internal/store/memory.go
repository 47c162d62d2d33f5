package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is a Backend held in process memory. Data is lost on exit.
type Memory struct {
	mu    sync.RWMutex
	byRef map[string]core.StoredTransaction
	seq   map[string]int
	now   func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		byRef: make(map[string]core.StoredTransaction),
		seq:   make(map[string]int),
		now:   time.Now,
	}
}

// GetOrCreate checks and inserts under one lock.
func (m *Memory) GetOrCreate(_ context.Context, reference string, d core.TransactionDefaults) (core.StoredTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx, ok := m.byRef[reference]; ok {
		return tx, false, nil
	}

	tx := core.StoredTransaction{
		ID:          uuid.New(),
		Reference:   reference,
		Timestamp:   d.Timestamp,
		Amount:      d.Amount,
		Currency:    d.Currency,
		Description: d.Description,
		CreatedAt:   m.now(),
	}
	m.byRef[reference] = tx
	m.seq[reference] = len(m.seq)
	return tx, true, nil
}

// List returns all transactions, newest first.
func (m *Memory) List(_ context.Context) ([]core.StoredTransaction, error) {
	return m.filter(func(core.StoredTransaction) bool { return true }), nil
}

// MaxPositiveAmount returns the largest amount above zero.
func (m *Memory) MaxPositiveAmount(_ context.Context) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  decimal.Decimal
		found bool
	)
	for _, tx := range m.byRef {
		if tx.Amount.IsPositive() && (!found || tx.Amount.GreaterThan(best)) {
			best, found = tx.Amount, true
		}
	}
	return best, found, nil
}

// ListByAmount returns transactions whose amount equals amount numerically.
func (m *Memory) ListByAmount(_ context.Context, amount decimal.Decimal) ([]core.StoredTransaction, error) {
	return m.filter(func(tx core.StoredTransaction) bool { return tx.Amount.Equal(amount) }), nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) filter(keep func(core.StoredTransaction) bool) []core.StoredTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.StoredTransaction
	for _, tx := range m.byRef {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	slices.SortFunc(out, func(a, b core.StoredTransaction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return m.seq[b.Reference] - m.seq[a.Reference]
	})
	return out
}
