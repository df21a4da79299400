// Package engine implements the reconciliation pipeline: candidate
// generation, scoring fan-out, greedy matching, discrepancy
// classification, adjustment proposal and the confidence-gated
// auto-apply step, all recorded through the run store.
package engine

import (
	"github.com/contaflux/bankrecon/internal/domain"
)

// GenerateCandidates emits a MatchCandidate for every bank line / ledger
// entry pair that satisfies the hard constraints: exact signed-amount
// equality and a date within the tolerance window. Amount equality is
// exact; only dates and text are fuzzy. Confidence is filled in later by
// the scoring stage.
func GenerateCandidates(lines []domain.BankLine, entries []domain.LedgerEntry, toleranceDays int) []domain.MatchCandidate {
	byAmount := make(map[int64][]domain.LedgerEntry, len(entries))
	for _, e := range entries {
		byAmount[e.Amount] = append(byAmount[e.Amount], e)
	}

	var candidates []domain.MatchCandidate
	for _, line := range lines {
		for _, entry := range byAmount[line.Amount] {
			delta := line.Date.DaysSince(entry.Date)
			if delta < 0 {
				delta = -delta
			}
			if delta > toleranceDays {
				continue
			}
			matchType := domain.MatchTypeFuzzy
			if delta == 0 {
				matchType = domain.MatchTypeExact
			}
			candidates = append(candidates, domain.MatchCandidate{
				BankLineID:    line.ID,
				LedgerEntryID: entry.ID,
				MatchType:     matchType,
				DateDelta:     delta,
			})
		}
	}
	return candidates
}
