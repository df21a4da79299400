// Package ledger defines the engine's contracts with the accounting-ledger
// collaborator: reading posted entries for a client and period, and posting
// corrective entries idempotently.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/contaflux/bankrecon/internal/domain"
)

// Source queries posted ledger entries. The engine only reads through this
// interface; the books are owned by the accounting subsystem.
type Source interface {
	ListEntries(ctx context.Context, clientID, period string) ([]domain.RawLedgerEntry, error)
}

// Poster creates an immutable ledger entry from an approved adjustment.
// Implementations must be idempotent for a given caller-supplied token, so
// a retry after a timeout of unknown outcome cannot double-post.
type Poster interface {
	Post(ctx context.Context, clientID string, entry domain.ProposedEntry, idempotencyToken string) (postedID string, err error)
}

// InMemory is a map-backed ledger serving both collaborator interfaces.
// It backs the CLI's offline mode and the test suites; production wiring
// uses the BigQuery implementation.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string][]domain.RawLedgerEntry // keyed by clientID|period
	posted  map[string]string                  // idempotency token -> posted ID
}

// NewInMemory creates an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[string][]domain.RawLedgerEntry),
		posted:  make(map[string]string),
	}
}

// Seed loads entries for one client and period.
func (l *InMemory) Seed(clientID, period string, entries []domain.RawLedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[ledgerKey(clientID, period)] = append([]domain.RawLedgerEntry(nil), entries...)
}

// ListEntries implements Source.
func (l *InMemory) ListEntries(ctx context.Context, clientID, period string) ([]domain.RawLedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.entries[ledgerKey(clientID, period)]
	return append([]domain.RawLedgerEntry(nil), entries...), nil
}

// Post implements Poster. Posting the same token twice returns the
// original posted ID without creating a second entry.
func (l *InMemory) Post(ctx context.Context, clientID string, entry domain.ProposedEntry, idempotencyToken string) (string, error) {
	if idempotencyToken == "" {
		return "", fmt.Errorf("posting requires an idempotency token")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if postedID, ok := l.posted[idempotencyToken]; ok {
		return postedID, nil
	}

	postedID := uuid.NewString()
	l.posted[idempotencyToken] = postedID
	return postedID, nil
}

// PostedCount reports how many distinct entries have been posted.
func (l *InMemory) PostedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.posted)
}

func ledgerKey(clientID, period string) string {
	return clientID + "|" + period
}

var _ Source = (*InMemory)(nil)
var _ Poster = (*InMemory)(nil)
