package engine

import (
	"github.com/google/uuid"

	"github.com/contaflux/bankrecon/internal/domain"
)

// discrepancyNamespace is the UUIDv5 namespace for discrepancy IDs.
var discrepancyNamespace = uuid.MustParse("8f2b6a1e-3c94-4d6a-9b1f-2f7c0a5e41d3")

// discrepancyID derives a stable ID from the run and the unmatched record.
// The ID doubles as the posting idempotency token, so a retried run (same
// run key, same unmatched record) carries the same token and cannot post
// the same adjustment twice.
func discrepancyID(runID string, kind domain.DiscrepancyKind, sourceID string) string {
	return uuid.NewSHA1(discrepancyNamespace, []byte(runID+"|"+string(kind)+"|"+sourceID)).String()
}

// ClassifyDiscrepancies partitions the unmatched remainder of a run: every
// bank line absent from the assignment becomes an unmatched_bank
// discrepancy, every ledger entry absent becomes unmatched_ledger.
func ClassifyDiscrepancies(runID string, lines []domain.BankLine, entries []domain.LedgerEntry, matches []domain.MatchResult) []domain.Discrepancy {
	matchedBank := make(map[string]bool, len(matches))
	matchedLedger := make(map[string]bool, len(matches))
	for _, m := range matches {
		matchedBank[m.BankLineID] = true
		matchedLedger[m.LedgerEntryID] = true
	}

	var discrepancies []domain.Discrepancy
	for _, line := range lines {
		if matchedBank[line.ID] {
			continue
		}
		discrepancies = append(discrepancies, domain.Discrepancy{
			ID:          discrepancyID(runID, domain.DiscrepancyUnmatchedBank, line.ID),
			Kind:        domain.DiscrepancyUnmatchedBank,
			SourceID:    line.ID,
			Amount:      line.Amount,
			Date:        line.Date,
			Description: line.Description,
		})
	}
	for _, entry := range entries {
		if matchedLedger[entry.ID] {
			continue
		}
		discrepancies = append(discrepancies, domain.Discrepancy{
			ID:          discrepancyID(runID, domain.DiscrepancyUnmatchedLedger, entry.ID),
			Kind:        domain.DiscrepancyUnmatchedLedger,
			SourceID:    entry.ID,
			Amount:      entry.Amount,
			Date:        entry.Date,
			Description: entry.Description,
		})
	}
	return discrepancies
}
