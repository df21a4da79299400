package ledger

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflux/bankrecon/internal/domain"
)

func TestInMemory_ListEntries(t *testing.T) {
	l := NewInMemory()
	l.Seed("c1", "2024-03", []domain.RawLedgerEntry{
		{ID: "l1", ClientID: "c1", Date: "2024-03-01", Description: "A", Amount: "10.00"},
	})

	entries, err := l.ListEntries(context.Background(), "c1", "2024-03")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	other, err := l.ListEntries(context.Background(), "c1", "2024-04")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestInMemory_PostIdempotent(t *testing.T) {
	l := NewInMemory()
	entry := domain.ProposedEntry{
		Date:        civil.Date{Year: 2024, Month: 3, Day: 5},
		Amount:      5000,
		Description: "DEPOSITO DINHEIRO",
	}

	first, err := l.Post(context.Background(), "c1", entry, "disc-1")
	require.NoError(t, err)

	second, err := l.Post(context.Background(), "c1", entry, "disc-1")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same token must return the same posted ID")
	assert.Equal(t, 1, l.PostedCount())
}

func TestInMemory_PostRequiresToken(t *testing.T) {
	l := NewInMemory()
	_, err := l.Post(context.Background(), "c1", domain.ProposedEntry{}, "")
	assert.Error(t, err)
}

func TestMinorUnitsToDecimalString(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{minor: 15000, want: "150.00"},
		{minor: -1250, want: "-12.50"},
		{minor: 5, want: "0.05"},
		{minor: 0, want: "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, minorUnitsToDecimalString(tt.minor))
	}
}
