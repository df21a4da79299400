package runstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflux/bankrecon/internal/domain"
)

func newRunRecord(id string) *domain.RunRecord {
	return &domain.RunRecord{
		RunID:    id,
		ClientID: "c1",
		Period:   "2024-03",
	}
}

func TestInMemory_BeginCreates(t *testing.T) {
	s := NewInMemory()

	rec, created, err := s.Begin(context.Background(), newRunRecord("r1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RunStatusRunning, rec.Status)
	assert.False(t, rec.StartedAt.IsZero())
}

func TestInMemory_BeginShortCircuitsDuplicates(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	first, created, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.StartedAt, second.StartedAt)
}

func TestInMemory_ConcurrentBeginReservesOnce(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	const n = 8
	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Begin(ctx, newRunRecord("r1"))
			if err == nil && ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load(), "exactly one invocation may reserve the key")
}

func TestInMemory_BeginRequiresRunID(t *testing.T) {
	s := NewInMemory()
	_, _, err := s.Begin(context.Background(), &domain.RunRecord{})
	assert.Error(t, err)
}

func TestInMemory_FinalizeCommitsOutputs(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	_, _, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)

	final := newRunRecord("r1")
	final.Status = domain.RunStatusCompleted
	final.Matched = 1

	matches := []domain.MatchResult{{BankLineID: "b1", LedgerEntryID: "l1", Confidence: 0.97, MatchedAt: time.Now()}}
	adjustments := []domain.Adjustment{{DiscrepancyID: "d1", Status: domain.AdjustmentPendingReview, Confidence: 0.75}}
	require.NoError(t, s.Finalize(ctx, final, matches, adjustments))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	gotMatches, gotAdjustments, err := s.Results(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, matches, gotMatches)
	assert.Equal(t, adjustments, gotAdjustments)
}

func TestInMemory_FinalizedRunIsImmutable(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	_, _, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)

	final := newRunRecord("r1")
	final.Status = domain.RunStatusCompleted
	require.NoError(t, s.Finalize(ctx, final, nil, nil))

	again := newRunRecord("r1")
	again.Status = domain.RunStatusFailed
	assert.Error(t, s.Finalize(ctx, again, nil, nil), "terminal records must never be rewritten")

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
}

func TestInMemory_FinalizeUnknownRun(t *testing.T) {
	s := NewInMemory()
	rec := newRunRecord("ghost")
	rec.Status = domain.RunStatusCompleted
	assert.Error(t, s.Finalize(context.Background(), rec, nil, nil))
}

func TestInMemory_AbortReleasesReservation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	_, _, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx, "r1"))

	// The key is free again: a retry creates a fresh run.
	_, created, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestInMemory_AbortRefusesFinalizedRun(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	_, _, err := s.Begin(ctx, newRunRecord("r1"))
	require.NoError(t, err)

	final := newRunRecord("r1")
	final.Status = domain.RunStatusCompleted
	require.NoError(t, s.Finalize(ctx, final, nil, nil))

	assert.Error(t, s.Abort(ctx, "r1"))
}

func TestInMemory_GetUnknownRun(t *testing.T) {
	s := NewInMemory()
	_, err := s.Get(context.Background(), "ghost")
	assert.Error(t, err)
}
