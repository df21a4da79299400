// Package score provides the pluggable scoring capability of the
// reconciliation engine: a deterministic local heuristic, an external
// Gemini-backed oracle, and a fallback wrapper that degrades from the
// oracle to the heuristic instead of failing a run.
package score

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/contaflux/bankrecon/internal/domain"
)

// Scorer is the scoring capability contract. Implementations must return
// confidences in [0,1]. Any implementation with the same signatures can be
// substituted without changing the rest of the engine.
type Scorer interface {
	// Score rates how likely a bank line and a ledger entry describe the
	// same cash movement.
	Score(ctx context.Context, line domain.BankLine, entry domain.LedgerEntry) (float64, error)

	// ProposeAdjustment proposes a corrective ledger posting for an
	// unmatched record, with its own confidence.
	ProposeAdjustment(ctx context.Context, d domain.Discrepancy) (domain.ProposedEntry, float64, error)
}

// Local heuristic proposal confidences. Mirroring a bank movement into the
// books is mechanical; reversing a ledger entry is more speculative. Both
// sit below the default auto-apply threshold so the heuristic alone never
// posts automatically.
const (
	mirrorConfidence   = 0.75
	reversalConfidence = 0.60
)

// Local is the deterministic heuristic scorer:
//
//	confidence = dateWeight*dateScore + descriptionWeight*descriptionScore
//
// dateScore forgives a settlement lag (statements routinely post a day
// after the books) and then decays linearly over the tolerance window.
// descriptionScore is the token-overlap coefficient over case-folded
// alphanumeric tokens, so "Pagamento Fornecedor X Ltda" still scores 1.0
// against "PAGAMENTO FORNECEDOR X".
type Local struct {
	DateWeight        float64
	DescriptionWeight float64
	ToleranceDays     int
	SettlementLagDays int
}

// NewLocal builds the heuristic with the given matching parameters.
func NewLocal(dateWeight, descriptionWeight float64, toleranceDays, settlementLagDays int) *Local {
	return &Local{
		DateWeight:        dateWeight,
		DescriptionWeight: descriptionWeight,
		ToleranceDays:     toleranceDays,
		SettlementLagDays: settlementLagDays,
	}
}

// Score implements Scorer. It never fails.
func (l *Local) Score(ctx context.Context, line domain.BankLine, entry domain.LedgerEntry) (float64, error) {
	delta := line.Date.DaysSince(entry.Date)
	if delta < 0 {
		delta = -delta
	}
	conf := l.DateWeight*l.dateScore(delta) + l.DescriptionWeight*descriptionScore(line.Description, entry.Description)
	return clamp(conf), nil
}

// ProposeAdjustment implements Scorer with the deterministic proposals:
// a bank movement with no ledger counterpart is mirrored into the books; a
// ledger entry with no bank counterpart gets a reversing entry flagged for
// review.
func (l *Local) ProposeAdjustment(ctx context.Context, d domain.Discrepancy) (domain.ProposedEntry, float64, error) {
	switch d.Kind {
	case domain.DiscrepancyUnmatchedBank:
		return domain.ProposedEntry{
			Date:        d.Date,
			Amount:      d.Amount,
			Description: d.Description,
			AccountHint: "bank_suspense",
		}, mirrorConfidence, nil
	case domain.DiscrepancyUnmatchedLedger:
		return domain.ProposedEntry{
			Date:        d.Date,
			Amount:      -d.Amount,
			Description: "Estorno: " + d.Description,
			AccountHint: "pending_review",
		}, reversalConfidence, nil
	default:
		return domain.ProposedEntry{}, 0, fmt.Errorf("unknown discrepancy kind %q", d.Kind)
	}
}

func (l *Local) dateScore(delta int) float64 {
	lagged := delta - l.SettlementLagDays
	if lagged <= 0 {
		return 1
	}
	score := 1 - float64(lagged)/float64(l.ToleranceDays)
	if score < 0 {
		return 0
	}
	return score
}

// descriptionScore is the overlap coefficient |A∩B| / min(|A|, |B|) over
// normalized token sets.
func descriptionScore(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == 0 && len(tb) == 0 {
			return 1
		}
		return 0
	}
	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	minLen := len(ta)
	if len(tb) < minLen {
		minLen = len(tb)
	}
	return float64(shared) / float64(minLen)
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = true
	}
	return tokens
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
