package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// MatchType distinguishes how a candidate pairing was produced.
type MatchType string

const (
	// MatchTypeExact means amount and calendar day both matched exactly.
	MatchTypeExact MatchType = "exact"
	// MatchTypeFuzzy means the amount matched but the dates differ within
	// the tolerance window.
	MatchTypeFuzzy MatchType = "fuzzy"
)

// MatchCandidate pairs a bank line with a ledger entry that satisfies the
// hard constraints (exact signed amount, date within tolerance). Candidates
// are ephemeral: produced and consumed within a single run.
type MatchCandidate struct {
	BankLineID    string    `json:"bank_line_id"`
	LedgerEntryID string    `json:"ledger_entry_id"`
	Confidence    float64   `json:"confidence"`
	MatchType     MatchType `json:"match_type"`
	DateDelta     int       `json:"date_delta"`
}

// MatchResult is an accepted one-to-one assignment. Each BankLineID and
// each LedgerEntryID appears in at most one MatchResult per run.
type MatchResult struct {
	BankLineID    string    `json:"bank_line_id"`
	LedgerEntryID string    `json:"ledger_entry_id"`
	Confidence    float64   `json:"confidence"`
	MatchedAt     time.Time `json:"matched_at"`
}

// DiscrepancyKind classifies which side of the books is missing a
// counterpart.
type DiscrepancyKind string

const (
	DiscrepancyUnmatchedBank   DiscrepancyKind = "unmatched_bank"
	DiscrepancyUnmatchedLedger DiscrepancyKind = "unmatched_ledger"
)

// Discrepancy is a bank line or ledger entry that could not be matched.
// It carries no confidence of its own; only the Adjustment proposed for it
// does.
type Discrepancy struct {
	ID          string          `json:"id"`
	Kind        DiscrepancyKind `json:"kind"`
	SourceID    string          `json:"source_id"`
	Amount      int64           `json:"amount"`
	Date        civil.Date      `json:"date"`
	Description string          `json:"description"`
}

// ProposedEntry is the corrective ledger posting proposed for a
// discrepancy.
type ProposedEntry struct {
	Date        civil.Date `json:"date"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description"`
	AccountHint string     `json:"account_hint"`
}

// AdjustmentStatus is the lifecycle state of an Adjustment. Transitions
// only move forward: proposed -> applied via the auto-apply gate, or
// proposed -> pending_review awaiting human action.
type AdjustmentStatus string

const (
	AdjustmentProposed      AdjustmentStatus = "proposed"
	AdjustmentApplied       AdjustmentStatus = "applied"
	AdjustmentPendingReview AdjustmentStatus = "pending_review"
	AdjustmentRejected      AdjustmentStatus = "rejected"
)

// Adjustment is a proposed corrective posting for one discrepancy,
// carrying its own confidence independent of any match confidence.
type Adjustment struct {
	DiscrepancyID string           `json:"discrepancy_id"`
	Proposed      ProposedEntry    `json:"proposed_entry"`
	Confidence    float64          `json:"confidence"`
	Status        AdjustmentStatus `json:"status"`

	// PostedID is set when the ledger collaborator accepted the posting.
	PostedID string `json:"posted_id,omitempty"`
	// FailureReason records a per-item posting failure; the adjustment
	// stays proposed and the rest of the run proceeds.
	FailureReason string `json:"failure_reason,omitempty"`
}
