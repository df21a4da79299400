package score

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflux/bankrecon/internal/domain"
)

func newReferenceLocal() *Local {
	return NewLocal(0.4, 0.6, 3, 1)
}

func day(d int) civil.Date {
	return civil.Date{Year: 2024, Month: 3, Day: d}
}

func TestLocalScore_NearIdenticalSupplierPayment(t *testing.T) {
	// Reference scenario: same amount, one settlement day apart,
	// near-identical descriptions must score above 0.9.
	l := newReferenceLocal()

	conf, err := l.Score(context.Background(),
		domain.BankLine{ID: "b1", Date: day(1), Description: "PAGAMENTO FORNECEDOR X", Amount: 15000, Direction: domain.DirectionCredit},
		domain.LedgerEntry{ID: "l1", Date: day(2), Description: "Pagamento Fornecedor X Ltda", Amount: 15000},
	)
	require.NoError(t, err)
	assert.Greater(t, conf, 0.9)
}

func TestLocalScore_DateDecay(t *testing.T) {
	l := newReferenceLocal()
	line := domain.BankLine{ID: "b1", Date: day(1), Description: "PIX LOJA ABC"}

	var prev = 2.0
	for _, d := range []int{1, 2, 3, 4} {
		entry := domain.LedgerEntry{ID: "l1", Date: day(d), Description: "PIX LOJA ABC"}
		conf, err := l.Score(context.Background(), line, entry)
		require.NoError(t, err)
		assert.LessOrEqual(t, conf, prev, "confidence must not grow with date distance")
		prev = conf
	}

	// Within the settlement lag the date component is perfect.
	conf, err := l.Score(context.Background(), line,
		domain.LedgerEntry{ID: "l1", Date: day(2), Description: "PIX LOJA ABC"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, conf, 1e-9)
}

func TestLocalScore_Bounds(t *testing.T) {
	l := newReferenceLocal()

	tests := []struct {
		name  string
		line  domain.BankLine
		entry domain.LedgerEntry
	}{
		{
			name:  "identical",
			line:  domain.BankLine{Date: day(1), Description: "TED EMPRESA"},
			entry: domain.LedgerEntry{Date: day(1), Description: "TED EMPRESA"},
		},
		{
			name:  "nothing in common",
			line:  domain.BankLine{Date: day(1), Description: "TARIFA BANCARIA"},
			entry: domain.LedgerEntry{Date: day(28), Description: "Folha de pagamento"},
		},
		{
			name:  "empty descriptions",
			line:  domain.BankLine{Date: day(1)},
			entry: domain.LedgerEntry{Date: day(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := l.Score(context.Background(), tt.line, tt.entry)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestDescriptionScore(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "pagamento fornecedor", b: "pagamento fornecedor", want: 1},
		{name: "case and punctuation folded", a: "PIX - LOJA/ABC", b: "pix loja abc", want: 1},
		{name: "superset scores full overlap", a: "PAGAMENTO FORNECEDOR X", b: "Pagamento Fornecedor X Ltda", want: 1},
		{name: "partial", a: "aluguel sala comercial", b: "aluguel galpao", want: 0.5},
		{name: "disjoint", a: "tarifa", b: "folha", want: 0},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "tarifa", b: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, descriptionScore(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLocalProposeAdjustment(t *testing.T) {
	l := newReferenceLocal()

	t.Run("unmatched bank mirrors the movement", func(t *testing.T) {
		entry, conf, err := l.ProposeAdjustment(context.Background(), domain.Discrepancy{
			ID:          "d1",
			Kind:        domain.DiscrepancyUnmatchedBank,
			SourceID:    "b9",
			Amount:      5000,
			Date:        day(10),
			Description: "DEPOSITO DINHEIRO",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), entry.Amount)
		assert.Equal(t, day(10), entry.Date)
		assert.Equal(t, "DEPOSITO DINHEIRO", entry.Description)
		assert.LessOrEqual(t, conf, 0.95, "heuristic proposals must not clear the auto-apply gate")
		assert.GreaterOrEqual(t, conf, 0.0)
	})

	t.Run("unmatched ledger proposes a reversal", func(t *testing.T) {
		entry, conf, err := l.ProposeAdjustment(context.Background(), domain.Discrepancy{
			ID:          "d2",
			Kind:        domain.DiscrepancyUnmatchedLedger,
			SourceID:    "l9",
			Amount:      -3310,
			Date:        day(11),
			Description: "Lancamento duplicado",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3310), entry.Amount)
		assert.Contains(t, entry.Description, "Estorno")
		assert.Less(t, conf, mirrorConfidence)
	})

	t.Run("unknown kind errors", func(t *testing.T) {
		_, _, err := l.ProposeAdjustment(context.Background(), domain.Discrepancy{Kind: "sideways"})
		assert.Error(t, err)
	})
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "already clean", raw: `{"confidence": 0.9}`, want: `{"confidence": 0.9}`},
		{name: "fenced", raw: "```json\n{\"confidence\": 0.9}\n```", want: `{"confidence": 0.9}`},
		{name: "prose around object", raw: "Sure! Here it is: {\"confidence\": 0.9} Hope that helps.", want: `{"confidence": 0.9}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}
