package engine

import (
	"sort"
	"time"

	"github.com/contaflux/bankrecon/internal/domain"
)

// ResolveMatches reduces scored candidates into a one-to-one assignment:
// sorted by confidence descending, a candidate is accepted only when
// neither its bank line nor its ledger entry has been consumed. This is a
// greedy maximum-weight approximation, not optimal bipartite matching;
// with near-unique amount matches it is the accepted trade-off. Ties break
// on smaller date delta, then ascending bank line ID, then ascending
// ledger entry ID, so the assignment is fully deterministic.
func ResolveMatches(candidates []domain.MatchCandidate, matchedAt time.Time) []domain.MatchResult {
	sorted := append([]domain.MatchCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.DateDelta != b.DateDelta {
			return a.DateDelta < b.DateDelta
		}
		if a.BankLineID != b.BankLineID {
			return a.BankLineID < b.BankLineID
		}
		return a.LedgerEntryID < b.LedgerEntryID
	})

	usedBank := make(map[string]bool)
	usedLedger := make(map[string]bool)

	var results []domain.MatchResult
	for _, c := range sorted {
		if usedBank[c.BankLineID] || usedLedger[c.LedgerEntryID] {
			continue
		}
		usedBank[c.BankLineID] = true
		usedLedger[c.LedgerEntryID] = true
		results = append(results, domain.MatchResult{
			BankLineID:    c.BankLineID,
			LedgerEntryID: c.LedgerEntryID,
			Confidence:    c.Confidence,
			MatchedAt:     matchedAt,
		})
	}
	return results
}
