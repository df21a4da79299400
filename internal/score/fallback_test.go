package score

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflux/bankrecon/internal/domain"
)

// stubScorer is a configurable Scorer for tests.
type stubScorer struct {
	conf       float64
	propose    domain.ProposedEntry
	proposeCnf float64
	err        error
	delay      time.Duration
	calls      int
}

func (s *stubScorer) Score(ctx context.Context, line domain.BankLine, entry domain.LedgerEntry) (float64, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.conf, s.err
}

func (s *stubScorer) ProposeAdjustment(ctx context.Context, d domain.Discrepancy) (domain.ProposedEntry, float64, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.ProposedEntry{}, 0, ctx.Err()
		}
	}
	return s.propose, s.proposeCnf, s.err
}

func TestFallback_PrimaryHealthy(t *testing.T) {
	primary := &stubScorer{conf: 0.93}
	local := &stubScorer{conf: 0.5}
	f := WithFallback(primary, local, time.Second)

	conf, err := f.Score(context.Background(), domain.BankLine{}, domain.LedgerEntry{})
	require.NoError(t, err)
	assert.Equal(t, 0.93, conf)
	assert.False(t, f.Degraded())
	assert.Zero(t, local.calls)
}

func TestFallback_PrimaryErrorDegrades(t *testing.T) {
	primary := &stubScorer{err: errors.New("503 backend unavailable")}
	local := &stubScorer{conf: 0.42}
	f := WithFallback(primary, local, time.Second)

	conf, err := f.Score(context.Background(), domain.BankLine{}, domain.LedgerEntry{})
	require.NoError(t, err)
	assert.Equal(t, 0.42, conf)
	assert.True(t, f.Degraded())
}

func TestFallback_PrimaryTimeoutDegrades(t *testing.T) {
	primary := &stubScorer{conf: 0.99, delay: 500 * time.Millisecond}
	local := &stubScorer{conf: 0.42}
	f := WithFallback(primary, local, 10*time.Millisecond)

	conf, err := f.Score(context.Background(), domain.BankLine{}, domain.LedgerEntry{})
	require.NoError(t, err)
	assert.Equal(t, 0.42, conf)
	assert.True(t, f.Degraded())
}

func TestFallback_NilPrimaryIsNotDegraded(t *testing.T) {
	local := &stubScorer{conf: 0.42, propose: domain.ProposedEntry{Description: "x"}, proposeCnf: 0.6}
	f := WithFallback(nil, local, time.Second)

	conf, err := f.Score(context.Background(), domain.BankLine{}, domain.LedgerEntry{})
	require.NoError(t, err)
	assert.Equal(t, 0.42, conf)

	_, pconf, err := f.ProposeAdjustment(context.Background(), domain.Discrepancy{Kind: domain.DiscrepancyUnmatchedBank})
	require.NoError(t, err)
	assert.Equal(t, 0.6, pconf)

	assert.False(t, f.Degraded())
}

func TestFallback_ProposeAdjustmentFallsBack(t *testing.T) {
	primary := &stubScorer{err: errors.New("oracle down")}
	local := &stubScorer{propose: domain.ProposedEntry{Description: "local proposal"}, proposeCnf: 0.75}
	f := WithFallback(primary, local, time.Second)

	entry, conf, err := f.ProposeAdjustment(context.Background(), domain.Discrepancy{Kind: domain.DiscrepancyUnmatchedBank})
	require.NoError(t, err)
	assert.Equal(t, "local proposal", entry.Description)
	assert.Equal(t, 0.75, conf)
	assert.True(t, f.Degraded())
}

func TestFallback_ClampsPrimaryConfidence(t *testing.T) {
	primary := &stubScorer{conf: 1.7}
	f := WithFallback(primary, &stubScorer{}, time.Second)

	conf, err := f.Score(context.Background(), domain.BankLine{}, domain.LedgerEntry{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, conf)
}
