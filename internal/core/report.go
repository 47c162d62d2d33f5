package core

import (
	"fmt"
	"net/http"
)

// Status classifies a finished batch.
type Status int

const (
	// FullSuccess means every row was created.
	FullSuccess Status = iota
	// PartialSuccess means at least one row was rejected or was a duplicate.
	PartialSuccess
)

func (s Status) String() string {
	switch s {
	case FullSuccess:
		return "full_success"
	case PartialSuccess:
		return "partial_success"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Report is the classified outcome of a batch.
type Report struct {
	Status  Status
	Message string
	Result  ImportResult
}

// Classify maps counts to a status and the summary message.
func Classify(result ImportResult) Report {
	status := PartialSuccess
	if result.Errors == 0 && result.Duplicates == 0 {
		status = FullSuccess
	}
	return Report{
		Status: status,
		Message: fmt.Sprintf("Processed %d (created %d, errors %d, duplicates %d)",
			result.Processed, result.Created, result.Errors, result.Duplicates),
		Result: result,
	}
}

// HTTPStatus returns 201 for FullSuccess and 207 for PartialSuccess.
func (r Report) HTTPStatus() int {
	if r.Status == FullSuccess {
		return http.StatusCreated
	}
	return http.StatusMultiStatus
}
