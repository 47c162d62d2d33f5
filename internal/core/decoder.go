package core

// decoder.go frames a raw CSV body into a header and a lazy row sequence.
//
// Checks run in a fixed order and the first failure wins:
//
//  1. UTF-8 validity (ErrEncoding)
//  2. non-whitespace content (ErrEmptyInput)
//  3. header record framing (ParseError, ErrMissingHeader)
//  4. header contract (ErrMissingHeader, HeaderColumnsMissingError)
//  5. at least one data record (ErrNoRows)
//  6. framing of every remaining record (ParseError)
//
// Check 6 is a separate pass that keeps nothing, so a malformed record
// anywhere in the body rejects the batch before any row reaches a store.
// Rows themselves are still produced on demand while the caller ranges
// over Frame.Rows.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"strings"
	"unicode/utf8"
)

// ExpectedHeader lists the columns every batch must carry, in report order.
var ExpectedHeader = []string{"reference", "timestamp", "amount", "currency", "description"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var errNUL = errors.New("line contains NUL")

// Frame is a decoded CSV body. Its rows can be consumed once.
type Frame struct {
	header   []string
	reader   *csv.Reader
	first    []string
	consumed bool
}

// Decode validates raw and returns a Frame positioned at the first data row.
func Decode(raw []byte) (*Frame, error) {
	if !utf8.Valid(raw) {
		return nil, ErrEncoding
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyInput
	}

	f := &Frame{reader: newReader(raw)}

	header, err := f.read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, err
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	f.header = header

	first, err := f.read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	f.first = first

	if err := checkFraming(raw); err != nil {
		return nil, err
	}

	return f, nil
}

func newReader(raw []byte) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1 // ragged rows are allowed
	return reader
}

// checkFraming reads every record of raw and reports the first framing
// failure. Records are discarded.
func checkFraming(raw []byte) error {
	reader := newReader(raw)
	reader.ReuseRecord = true
	for {
		_, err := readRecord(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// checkHeader applies the two header gates: some expected column must be
// present, then all of them.
func checkHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[name] = true
	}

	var missing []string
	for _, name := range ExpectedHeader {
		if !present[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) == len(ExpectedHeader) {
		return ErrMissingHeader
	}
	if len(missing) > 0 {
		return &HeaderColumnsMissingError{Missing: missing}
	}
	return nil
}

// read returns the next record. io.EOF is returned unwrapped; every other
// failure is a *ParseError.
func (f *Frame) read() ([]string, error) {
	return readRecord(f.reader)
}

func readRecord(reader *csv.Reader) ([]string, error) {
	record, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &ParseError{Err: err}
	}

	for i, field := range record {
		if idx := strings.IndexByte(field, 0); idx >= 0 {
			line, col := reader.FieldPos(i)
			return nil, &ParseError{Err: &csv.ParseError{
				StartLine: line,
				Line:      line,
				Column:    col + idx,
				Err:       errNUL,
			}}
		}
	}
	return record, nil
}

// Header returns the header record as it appeared in the input.
func (f *Frame) Header() []string {
	return f.header
}

// Rows yields the data rows in input order. Decode has already checked the
// framing of every record; a read failure is still yielded once as a
// *ParseError and ends the sequence. Ranging a second time yields
// ErrFrameConsumed.
func (f *Frame) Rows() iter.Seq2[RawRow, error] {
	return func(yield func(RawRow, error) bool) {
		if f.consumed {
			yield(nil, ErrFrameConsumed)
			return
		}
		f.consumed = true

		record := f.first
		f.first = nil
		for {
			if !yield(f.toRow(record), nil) {
				return
			}
			next, err := f.read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			record = next
		}
	}
}

// toRow pairs a record with the header. Extra fields are dropped and
// columns beyond a short record are left out.
func (f *Frame) toRow(record []string) RawRow {
	row := make(RawRow, len(f.header))
	for i, name := range f.header {
		if i >= len(record) {
			break
		}
		row[name] = record[i]
	}
	return row
}
