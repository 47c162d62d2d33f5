package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/txingest/internal/config"
	"github.com/JonMunkholm/txingest/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrSchemaMissing wraps store errors caused by unapplied migrations.
var ErrSchemaMissing = errors.New("no such table: run migrations first")

const pgColumns = `id, reference, timestamp, amount::text, currency, description, created_at`

const (
	pgInsertTransaction = `
INSERT INTO transactions (id, reference, timestamp, amount, currency, description, created_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
ON CONFLICT (reference) DO NOTHING
RETURNING ` + pgColumns

	pgSelectByReference = `SELECT ` + pgColumns + ` FROM transactions WHERE reference = $1`

	pgListTransactions = `SELECT ` + pgColumns + ` FROM transactions ORDER BY timestamp DESC, created_at DESC`

	pgMaxPositiveAmount = `SELECT max(amount)::text FROM transactions WHERE amount > 0`

	pgListByAmount = `SELECT ` + pgColumns + ` FROM transactions WHERE amount = $1::numeric ORDER BY timestamp DESC`
)

// Postgres is a Backend on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres creates a pool from cfg and verifies the connection.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// Pool exposes the underlying pool for migrations.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// GetOrCreate inserts the transaction unless the reference exists and
// returns the stored row.
func (p *Postgres) GetOrCreate(ctx context.Context, reference string, d core.TransactionDefaults) (core.StoredTransaction, bool, error) {
	for range maxGetOrCreateAttempts {
		tx, err := scanPgTransaction(p.pool.QueryRow(ctx, pgInsertTransaction,
			uuid.New(), reference, d.Timestamp, d.Amount.String(), d.Currency, d.Description, p.now().UTC()))
		if err == nil {
			return tx, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return core.StoredTransaction{}, false, fmt.Errorf("insert transaction %q: %w", reference, wrapPgError(err))
		}

		tx, err = scanPgTransaction(p.pool.QueryRow(ctx, pgSelectByReference, reference))
		if err == nil {
			return tx, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return core.StoredTransaction{}, false, fmt.Errorf("select transaction %q: %w", reference, wrapPgError(err))
		}
	}
	return core.StoredTransaction{}, false, fmt.Errorf("get or create transaction %q: conflicting row vanished", reference)
}

// List returns all transactions, newest first.
func (p *Postgres) List(ctx context.Context) ([]core.StoredTransaction, error) {
	return p.query(ctx, pgListTransactions)
}

// MaxPositiveAmount returns the largest amount above zero.
func (p *Postgres) MaxPositiveAmount(ctx context.Context) (decimal.Decimal, bool, error) {
	var raw *string
	if err := p.pool.QueryRow(ctx, pgMaxPositiveAmount).Scan(&raw); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("max positive amount: %w", wrapPgError(err))
	}
	if raw == nil {
		return decimal.Decimal{}, false, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("parse amount %q: %w", *raw, err)
	}
	return d, true, nil
}

// ListByAmount returns transactions whose amount equals amount numerically.
func (p *Postgres) ListByAmount(ctx context.Context, amount decimal.Decimal) ([]core.StoredTransaction, error) {
	return p.query(ctx, pgListByAmount, amount.String())
}

// Ping verifies the pool can reach the server.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) query(ctx context.Context, sql string, args ...any) ([]core.StoredTransaction, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", wrapPgError(err))
	}
	defer rows.Close()

	var out []core.StoredTransaction
	for rows.Next() {
		tx, err := scanPgTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transactions: %w", wrapPgError(err))
	}
	return out, nil
}

func scanPgTransaction(row pgx.Row) (core.StoredTransaction, error) {
	var (
		tx     core.StoredTransaction
		amount string
	)
	err := row.Scan(&tx.ID, &tx.Reference, &tx.Timestamp, &amount, &tx.Currency, &tx.Description, &tx.CreatedAt)
	if err != nil {
		return core.StoredTransaction{}, err
	}
	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.StoredTransaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return tx, nil
}

// wrapPgError marks undefined-table errors with ErrSchemaMissing.
func wrapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
	}
	return err
}
