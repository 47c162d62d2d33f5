package core

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawRow maps header names to the values of one CSV data line.
// Columns missing from a short line are absent from the map.
type RawRow map[string]string

// ValidatedRecord is a row that passed ValidateRow.
type ValidatedRecord struct {
	Reference   string
	Timestamp   time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Defaults returns the values used when the record creates a new transaction.
func (r ValidatedRecord) Defaults() TransactionDefaults {
	return TransactionDefaults{
		Timestamp:   r.Timestamp,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
	}
}

// TransactionDefaults holds the non-key fields written on creation.
// They are discarded when the reference already exists.
type TransactionDefaults struct {
	Timestamp   time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// StoredTransaction is a persisted transaction.
type StoredTransaction struct {
	ID          uuid.UUID       `json:"id"`
	Reference   string          `json:"reference"`
	Timestamp   time.Time       `json:"timestamp"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ImportResult holds the per-batch outcome counts.
// Processed always equals Created + Errors + Duplicates.
type ImportResult struct {
	Processed  int `json:"processed"`
	Created    int `json:"created"`
	Errors     int `json:"errors"`
	Duplicates int `json:"duplicates"`
}

// Store persists transactions keyed by their unique reference.
//
// GetOrCreate must be atomic per reference: when two callers race on the
// same reference exactly one of them observes created == true. The returned
// transaction is the stored one, which for an existing reference carries
// the values of the first write.
type Store interface {
	GetOrCreate(ctx context.Context, reference string, defaults TransactionDefaults) (StoredTransaction, bool, error)
}

// TransactionReader provides the read side used by the listing page.
type TransactionReader interface {
	// List returns every stored transaction ordered by timestamp, newest first.
	List(ctx context.Context) ([]StoredTransaction, error)
	// MaxPositiveAmount returns the largest amount greater than zero.
	// ok is false when no transaction has a positive amount.
	MaxPositiveAmount(ctx context.Context) (amount decimal.Decimal, ok bool, err error)
	// ListByAmount returns the transactions whose amount equals amount.
	ListByAmount(ctx context.Context, amount decimal.Decimal) ([]StoredTransaction, error)
}

// RowsOf returns a row sequence over already materialized rows.
func RowsOf(rows ...RawRow) iter.Seq2[RawRow, error] {
	return func(yield func(RawRow, error) bool) {
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}
