package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so that text order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"

const sqliteColumns = `id, reference, timestamp, amount, currency, description, created_at`

const (
	sqliteInsertTransaction = `
INSERT INTO transactions (id, reference, timestamp, amount, currency, description, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (reference) DO NOTHING
RETURNING ` + sqliteColumns

	sqliteSelectByReference = `SELECT ` + sqliteColumns + ` FROM transactions WHERE reference = ?`

	sqliteListTransactions = `SELECT ` + sqliteColumns + ` FROM transactions ORDER BY timestamp DESC, created_at DESC`

	// Amounts are stored in canonical decimal form, so a positive amount is
	// one that is neither zero nor signed.
	sqlitePositiveAmounts = `SELECT amount FROM transactions WHERE amount <> '0' AND amount NOT LIKE '-%'`

	sqliteListByAmount = `SELECT ` + sqliteColumns + ` FROM transactions WHERE amount = ? ORDER BY timestamp DESC`
)

// SQLite is a Backend on a single-connection database/sql pool.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at dsn (a path, a file: URI or ":memory:")
// with WAL, busy timeout and foreign keys enabled.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sql.Open("sqlite", dsn+sep+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dsn, err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// DB exposes the underlying handle for migrations.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// GetOrCreate inserts the transaction unless the reference exists and
// returns the stored row.
func (s *SQLite) GetOrCreate(ctx context.Context, reference string, d core.TransactionDefaults) (core.StoredTransaction, bool, error) {
	for range maxGetOrCreateAttempts {
		tx, err := scanSQLiteTransaction(s.db.QueryRowContext(ctx, sqliteInsertTransaction,
			uuid.NewString(),
			reference,
			formatSQLiteTime(d.Timestamp),
			d.Amount.String(),
			d.Currency,
			d.Description,
			formatSQLiteTime(s.now()),
		))
		if err == nil {
			return tx, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return core.StoredTransaction{}, false, fmt.Errorf("insert transaction %q: %w", reference, err)
		}

		tx, err = scanSQLiteTransaction(s.db.QueryRowContext(ctx, sqliteSelectByReference, reference))
		if err == nil {
			return tx, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return core.StoredTransaction{}, false, fmt.Errorf("select transaction %q: %w", reference, err)
		}
	}
	return core.StoredTransaction{}, false, fmt.Errorf("get or create transaction %q: conflicting row vanished", reference)
}

// List returns all transactions, newest first.
func (s *SQLite) List(ctx context.Context) ([]core.StoredTransaction, error) {
	return s.query(ctx, sqliteListTransactions)
}

// MaxPositiveAmount compares candidates as decimals since the column is text.
func (s *SQLite) MaxPositiveAmount(ctx context.Context) (decimal.Decimal, bool, error) {
	rows, err := s.db.QueryContext(ctx, sqlitePositiveAmounts)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("max positive amount: %w", err)
	}
	defer rows.Close()

	var (
		best  decimal.Decimal
		found bool
	)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Decimal{}, false, fmt.Errorf("scan amount: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Decimal{}, false, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		if d.IsPositive() && (!found || d.GreaterThan(best)) {
			best, found = d, true
		}
	}
	if err := rows.Err(); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("read amounts: %w", err)
	}
	return best, found, nil
}

// ListByAmount returns transactions whose amount equals amount numerically.
func (s *SQLite) ListByAmount(ctx context.Context, amount decimal.Decimal) ([]core.StoredTransaction, error) {
	return s.query(ctx, sqliteListByAmount, amount.String())
}

// Ping verifies the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) query(ctx context.Context, query string, args ...any) ([]core.StoredTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.StoredTransaction
	for rows.Next() {
		tx, err := scanSQLiteTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transactions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTransaction(row rowScanner) (core.StoredTransaction, error) {
	var id, ts, amount, createdAt string
	var tx core.StoredTransaction

	if err := row.Scan(&id, &tx.Reference, &ts, &amount, &tx.Currency, &tx.Description, &createdAt); err != nil {
		return core.StoredTransaction{}, err
	}

	var err error
	if tx.ID, err = uuid.Parse(id); err != nil {
		return core.StoredTransaction{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if tx.Timestamp, err = time.Parse(sqliteTimeLayout, ts); err != nil {
		return core.StoredTransaction{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.StoredTransaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if tx.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return core.StoredTransaction{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return tx, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
