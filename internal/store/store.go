// Package store implements the transaction stores behind core.Store and
// core.TransactionReader: PostgreSQL through pgx, SQLite through the pure Go
// modernc driver, and an in-process map for tests and demos.
//
// Every implementation creates a transaction with a single
// insert-if-absent statement keyed by reference, so concurrent batches
// never store the same reference twice.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/txingest/internal/config"
	"github.com/JonMunkholm/txingest/internal/core"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown database driver")

// maxGetOrCreateAttempts bounds the insert/select loop when a conflicting
// row disappears between the two statements.
const maxGetOrCreateAttempts = 3

// Backend is a store usable by the service.
type Backend interface {
	core.Store
	core.TransactionReader
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.URL)
	case config.DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
