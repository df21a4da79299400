// Package runstore persists reconciliation run records. The store is the
// engine's only durable commit point and its only cross-run concurrency
// mechanism: runs are keyed by an idempotency hash, and a second
// invocation with the same key is short-circuited to the prior record.
package runstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/contaflux/bankrecon/internal/domain"
)

// Store records reconciliation runs and their outputs.
type Store interface {
	// Begin registers a run reservation under its RunID. If a record with
	// the same ID already exists (completed or in flight), the existing
	// record is returned with created=false and nothing is written.
	Begin(ctx context.Context, rec *domain.RunRecord) (existing *domain.RunRecord, created bool, err error)

	// Finalize durably commits the finished run together with its outputs.
	// A finalized record is never mutated again.
	Finalize(ctx context.Context, rec *domain.RunRecord, matches []domain.MatchResult, adjustments []domain.Adjustment) error

	// Abort releases a reservation for a run that was cancelled or failed
	// before reaching the commit point, discarding partial work.
	Abort(ctx context.Context, runID string) error

	// Get retrieves a run record by ID.
	Get(ctx context.Context, runID string) (*domain.RunRecord, error)

	// Results retrieves the committed outputs of a finalized run.
	Results(ctx context.Context, runID string) ([]domain.MatchResult, []domain.Adjustment, error)
}

// InMemory is a map-backed Store, safe for concurrent use. Data is lost on
// restart; production wiring uses the BigQuery store.
type InMemory struct {
	mu          sync.Mutex
	runs        map[string]*domain.RunRecord
	matches     map[string][]domain.MatchResult
	adjustments map[string][]domain.Adjustment
}

// NewInMemory creates an empty in-memory run store.
func NewInMemory() *InMemory {
	return &InMemory{
		runs:        make(map[string]*domain.RunRecord),
		matches:     make(map[string][]domain.MatchResult),
		adjustments: make(map[string][]domain.Adjustment),
	}
}

// Begin implements Store.
func (s *InMemory) Begin(ctx context.Context, rec *domain.RunRecord) (*domain.RunRecord, bool, error) {
	if rec.RunID == "" {
		return nil, false, fmt.Errorf("run ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.runs[rec.RunID]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *rec
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now()
	}
	cp.Status = domain.RunStatusRunning
	s.runs[rec.RunID] = &cp

	out := cp
	return &out, true, nil
}

// Finalize implements Store.
func (s *InMemory) Finalize(ctx context.Context, rec *domain.RunRecord, matches []domain.MatchResult, adjustments []domain.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[rec.RunID]
	if !ok {
		return fmt.Errorf("run not found: %s", rec.RunID)
	}
	if existing.Status != domain.RunStatusRunning {
		return fmt.Errorf("run %s already finalized with status %s", rec.RunID, existing.Status)
	}

	cp := *rec
	if cp.CompletedAt == nil {
		now := time.Now()
		cp.CompletedAt = &now
	}
	s.runs[rec.RunID] = &cp
	s.matches[rec.RunID] = append([]domain.MatchResult(nil), matches...)
	s.adjustments[rec.RunID] = append([]domain.Adjustment(nil), adjustments...)
	return nil
}

// Abort implements Store.
func (s *InMemory) Abort(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[runID]
	if !ok {
		return nil
	}
	if existing.Status != domain.RunStatusRunning {
		return fmt.Errorf("cannot abort run %s with status %s", runID, existing.Status)
	}
	delete(s.runs, runID)
	return nil
}

// Get implements Store.
func (s *InMemory) Get(ctx context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	cp := *rec
	return &cp, nil
}

// Results implements Store.
func (s *InMemory) Results(ctx context.Context, runID string) ([]domain.MatchResult, []domain.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, nil, fmt.Errorf("run not found: %s", runID)
	}
	matches := append([]domain.MatchResult(nil), s.matches[runID]...)
	adjustments := append([]domain.Adjustment(nil), s.adjustments[runID]...)
	return matches, adjustments, nil
}

var _ Store = (*InMemory)(nil)
