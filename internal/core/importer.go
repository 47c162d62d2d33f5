package core

import (
	"context"
	"errors"
	"iter"
	"log/slog"
)

// Importer validates rows and persists them through a Store.
//
// An Importer holds no per-batch state and may be shared between goroutines
// as long as the Store is safe for concurrent use.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter creates an Importer. A nil logger uses slog.Default().
func NewImporter(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// ImportAll consumes rows in order, creating a transaction for every valid
// row whose reference is not yet stored.
//
// Invalid rows are counted and skipped. A store failure or an error yielded
// by rows aborts the batch; rows handled before the failure stay persisted.
func (im *Importer) ImportAll(ctx context.Context, rows iter.Seq2[RawRow, error]) (ImportResult, error) {
	var result ImportResult
	im.logger.Info("import started")

	line := 0
	for row, err := range rows {
		if err != nil {
			im.logger.Error("import aborted", "row", line+1, "error", err)
			return ImportResult{}, err
		}
		line++
		result.Processed++

		record, err := ValidateRow(row)
		if err != nil {
			var rowErr *RowValidationError
			if !errors.As(err, &rowErr) {
				return ImportResult{}, err
			}
			result.Errors++
			im.logger.Warn("row skipped", "row", line, "field", rowErr.Field, "reason", rowErr.Message)
			continue
		}

		_, created, err := im.store.GetOrCreate(ctx, record.Reference, record.Defaults())
		if err != nil {
			im.logger.Error("import aborted", "row", line, "reference", record.Reference, "error", err)
			return ImportResult{}, err
		}
		if created {
			result.Created++
		} else {
			result.Duplicates++
			im.logger.Warn("duplicate reference", "row", line, "reference", record.Reference)
		}
	}

	im.logger.Info("import finished",
		"processed", result.Processed,
		"created", result.Created,
		"errors", result.Errors,
		"duplicates", result.Duplicates,
	)
	return result, nil
}
