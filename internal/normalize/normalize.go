// Package normalize canonicalizes raw statement and ledger records before
// matching: amounts become signed integer minor units, dates become
// calendar days in the client's timezone, descriptions are trimmed.
package normalize

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/contaflux/bankrecon/internal/domain"
)

// minorUnitExponent is the currency exponent; BRL, like most currencies,
// carries two decimal places.
const minorUnitExponent = 2

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// Normalizer converts raw records into domain records, collecting one
// InvalidRecordError per malformed input instead of failing the batch.
type Normalizer struct {
	loc *time.Location
}

// New creates a Normalizer truncating dates in the given client timezone.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// BankLines normalizes a raw statement batch. Bank amounts are
// sign-adjusted by direction: credits positive, debits negative, so a bank
// credit lines up with the ledger side under the client's chart convention.
func (n *Normalizer) BankLines(raw []domain.RawBankLine) ([]domain.BankLine, []*domain.InvalidRecordError) {
	lines := make([]domain.BankLine, 0, len(raw))
	var invalid []*domain.InvalidRecordError

	for _, r := range raw {
		direction, err := parseDirection(r.ID, r.Type)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		amount, err := n.parseAmount(r.ID, r.Amount)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		date, err := n.parseDate(r.ID, r.Date)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}

		if amount < 0 {
			amount = -amount
		}
		if direction == domain.DirectionDebit {
			amount = -amount
		}

		lines = append(lines, domain.BankLine{
			ID:          r.ID,
			Date:        date,
			Description: strings.TrimSpace(r.Description),
			Amount:      amount,
			Direction:   direction,
		})
	}
	return lines, invalid
}

// LedgerEntries normalizes the ledger side of the batch. Ledger amounts
// are taken as-signed; the books already follow the chart convention.
func (n *Normalizer) LedgerEntries(raw []domain.RawLedgerEntry) ([]domain.LedgerEntry, []*domain.InvalidRecordError) {
	entries := make([]domain.LedgerEntry, 0, len(raw))
	var invalid []*domain.InvalidRecordError

	for _, r := range raw {
		amount, err := n.parseAmount(r.ID, r.Amount)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		date, err := n.parseDate(r.ID, r.Date)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}

		entries = append(entries, domain.LedgerEntry{
			ID:          r.ID,
			ClientID:    r.ClientID,
			Date:        date,
			Description: strings.TrimSpace(r.Description),
			Amount:      amount,
		})
	}
	return entries, invalid
}

// parseAmount converts a decimal string into integer minor units. Exactness
// is required: sub-cent amounts are malformed, not rounded.
func (n *Normalizer) parseAmount(recordID, raw string) (int64, *domain.InvalidRecordError) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, &domain.InvalidRecordError{RecordID: recordID, Field: "amount", Reason: "empty"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &domain.InvalidRecordError{RecordID: recordID, Field: "amount", Reason: "not a number"}
	}
	shifted := d.Shift(minorUnitExponent)
	if !shifted.IsInteger() {
		return 0, &domain.InvalidRecordError{RecordID: recordID, Field: "amount", Reason: "more precision than minor units"}
	}
	return shifted.IntPart(), nil
}

// parseDate accepts the platform's date layouts and truncates to the
// calendar day in the client's locale.
func (n *Normalizer) parseDate(recordID, raw string) (civil.Date, *domain.InvalidRecordError) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, n.loc)
		if err == nil {
			return civil.DateOf(t.In(n.loc)), nil
		}
	}
	return civil.Date{}, &domain.InvalidRecordError{RecordID: recordID, Field: "date", Reason: "unparsable date"}
}

func parseDirection(recordID, raw string) (domain.Direction, *domain.InvalidRecordError) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "credit", "c", "in":
		return domain.DirectionCredit, nil
	case "debit", "d", "out":
		return domain.DirectionDebit, nil
	default:
		return "", &domain.InvalidRecordError{RecordID: recordID, Field: "type", Reason: "unknown direction"}
	}
}
