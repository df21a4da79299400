package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions the engine recovers from or reports as a
// whole. Record-local failures carry their own typed errors below.
var (
	// ErrOracleUnavailable indicates the external scoring capability
	// failed or timed out. The engine falls back to the local heuristic
	// and marks the run degraded; it never fails a run for this alone.
	ErrOracleUnavailable = errors.New("scoring oracle unavailable")
)

// InvalidRecordError describes one malformed input record. Invalid records
// are excluded from matching and counted on the RunRecord, never silently
// dropped.
type InvalidRecordError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record %s: field %q: %s", e.RecordID, e.Field, e.Reason)
}

// PostingFailureError describes a ledger-posting rejection for one
// adjustment. Other adjustments in the same run are unaffected.
type PostingFailureError struct {
	DiscrepancyID string
	Err           error
}

func (e *PostingFailureError) Error() string {
	return fmt.Sprintf("posting adjustment for discrepancy %s: %v", e.DiscrepancyID, e.Err)
}

func (e *PostingFailureError) Unwrap() error { return e.Err }

// FatalInputError rejects an entire run before matching starts, e.g. when
// the batch is missing its identifying fields.
type FatalInputError struct {
	Reason string
}

func (e *FatalInputError) Error() string {
	return fmt.Sprintf("fatal input error: %s", e.Reason)
}
