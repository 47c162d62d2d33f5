package store

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationFiles embed.FS

// Migrate applies pending migrations to b. The memory backend needs none.
// It returns the schema version after the run.
func Migrate(b Backend) (uint, error) {
	switch s := b.(type) {
	case *Postgres:
		// Closing the migrate instance closes db; the pool stays open.
		db := stdlib.OpenDBFromPool(s.pool)
		driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			db.Close()
			return 0, fmt.Errorf("postgres migration driver: %w", err)
		}
		return runMigrations("postgres", driver, true)

	case *SQLite:
		// The sqlite driver closes the handle it wraps, so the migrate
		// instance must not be closed here.
		driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
		if err != nil {
			return 0, fmt.Errorf("sqlite migration driver: %w", err)
		}
		return runMigrations("sqlite", driver, false)

	case *Memory:
		return 0, nil

	default:
		return 0, fmt.Errorf("migrate: unsupported backend %T", b)
	}
}

func runMigrations(dialect string, driver database.Driver, closeAfter bool) (uint, error) {
	src, err := iofs.New(migrationFiles, "migrations/"+dialect)
	if err != nil {
		return 0, fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return 0, fmt.Errorf("migration instance: %w", err)
	}
	if closeAfter {
		defer m.Close()
	}

	slog.Info("applying database migrations", "dialect", dialect)
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("no new database migrations to apply")
	case err != nil:
		return 0, fmt.Errorf("apply migrations: %w", err)
	default:
		slog.Info("database migrations applied")
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("migration version: %w", err)
	}
	return version, nil
}
