// Package core provides the transaction ingestion pipeline.
//
// This package contains all domain logic independent of any transport or
// storage. It can be used by web handlers, the CLI, or tests without
// modification.
//
// # Pipeline
//
// A batch flows through four stages:
//
//  1. [Decode] turns the raw request body into a [Frame]: UTF-8 check,
//     emptiness check, CSV framing and the header contract.
//  2. [ValidateRow] turns each [RawRow] into a [ValidatedRecord] or a
//     [RowValidationError].
//  3. [Importer.ImportAll] persists validated records with an atomic
//     get-or-create keyed by reference and tallies an [ImportResult].
//  4. [Classify] maps the counts to [FullSuccess] or [PartialSuccess] and
//     the summary message.
//
// Rows are produced lazily by [Frame.Rows]; only one record is read ahead
// to detect a header-only body.
//
// # Deduplication
//
// The store's uniqueness constraint on reference is the only
// deduplication mechanism. The first validated occurrence of a reference
// is stored; later occurrences are counted as duplicates and their values
// are discarded.
//
// # Error Handling
//
// Structural errors ([ErrEncoding], [ErrEmptyInput], [ParseError],
// [ErrMissingHeader], [HeaderColumnsMissingError], [ErrNoRows]) reject the
// whole batch before any row is processed; [IsStructural] reports them.
// Row errors are absorbed into [ImportResult.Errors]. Store failures
// propagate unchanged.
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE007: Body and CSV structure errors
//   - VAL001-VAL003: Row validation errors
//   - DB001-DB004: Store errors
//   - IMP001-IMP004: Import slot, timeout and lookup errors
package core
