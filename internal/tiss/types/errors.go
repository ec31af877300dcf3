package types

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument means the XML could not be decoded. Nothing was written.
	ErrMalformedDocument = errors.New("malformed TISS document")

	// ErrPersistenceFailure means a write to the relational store failed.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// ValidationGap records an expected block that was absent. Gaps never stop
// ingestion; the affected fields keep their zero or default values.
type ValidationGap struct {
	Path string `json:"path"`
}

func (g ValidationGap) String() string {
	return "missing " + g.Path
}

// Ingestion stages reported by IngestionError.
const (
	StageOperator     = "operator"
	StageLookup       = "lookup"
	StageBatch        = "batch"
	StageGuide        = "guide"
	StageProcedure    = "procedure"
	StageExpense      = "expense"
	StageProfessional = "professional"
	StageHistory      = "history"
	StageCommit       = "commit"
)

// IngestionError carries the failing stage and, when one had been assigned,
// the batch id so callers can inspect or retry.
type IngestionError struct {
	Stage   string
	BatchID int64
	Err     error
}

func (e *IngestionError) Error() string {
	if e.BatchID != 0 {
		return fmt.Sprintf("ingestion failed at %s (batch %d): %v", e.Stage, e.BatchID, e.Err)
	}
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() []error {
	return []error{ErrPersistenceFailure, e.Err}
}
