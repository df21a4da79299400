package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RunStatus is the terminal (or in-flight) state of a reconciliation run.
type RunStatus string

const (
	// RunStatusRunning marks a run that has been registered but not yet
	// finalized. It is the only non-terminal status.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted marks a run that finished with the primary scorer.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusDegraded marks a run that finished but fell back to the
	// local heuristic because the external oracle was unavailable.
	RunStatusDegraded RunStatus = "degraded"
	// RunStatusFailed marks a run that could not produce results.
	RunStatusFailed RunStatus = "failed"
)

// RunRecord is the audit record for one reconciliation invocation, keyed
// for idempotent re-execution. It is never mutated after a terminal status
// is set.
type RunRecord struct {
	RunID    string `json:"run_id"`
	ClientID string `json:"client_id"`
	Period   string `json:"period"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	TotalBankLines     int `json:"total_bank_lines"`
	TotalLedgerEntries int `json:"total_ledger_entries"`
	InvalidRecords     int `json:"invalid_records"`
	Matched            int `json:"matched"`
	UnmatchedBank      int `json:"unmatched_bank"`
	UnmatchedLedger    int `json:"unmatched_ledger"`
	Applied            int `json:"applied"`

	Status        RunStatus `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// RunKey derives the idempotency key for a run from the client, period and
// the content of the normalized input batch. Two invocations with identical
// normalized inputs produce the same key and therefore the same RunID.
func RunKey(clientID, period string, lines []BankLine, entries []LedgerEntry) string {
	h := sha256.New()
	fmt.Fprintf(h, "client:%s|period:%s\n", clientID, period)
	for _, l := range lines {
		fmt.Fprintf(h, "b|%s|%s|%d|%s|%s\n", l.ID, l.Date, l.Amount, l.Direction, l.Description)
	}
	for _, e := range entries {
		fmt.Fprintf(h, "l|%s|%s|%d|%s\n", e.ID, e.Date, e.Amount, e.Description)
	}
	return hex.EncodeToString(h.Sum(nil))
}
