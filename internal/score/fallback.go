package score

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/contaflux/bankrecon/internal/domain"
	"github.com/contaflux/bankrecon/internal/logger"
)

// Fallback wraps a primary (typically external, rate-limited) scorer with
// the deterministic local heuristic. Any primary failure or timeout is
// answered by the heuristic instead, and the wrapper remembers that it
// degraded so the run can be marked accordingly. A run never fails because
// the oracle is unavailable. The flag is one-way, so callers build one
// wrapper per run rather than sharing it across runs.
type Fallback struct {
	primary  Scorer
	local    Scorer
	timeout  time.Duration
	degraded atomic.Bool
}

// WithFallback builds the wrapper. primary may be nil, in which case the
// heuristic answers everything and the run is not considered degraded.
func WithFallback(primary Scorer, local Scorer, timeout time.Duration) *Fallback {
	return &Fallback{primary: primary, local: local, timeout: timeout}
}

// Score implements Scorer.
func (f *Fallback) Score(ctx context.Context, line domain.BankLine, entry domain.LedgerEntry) (float64, error) {
	if f.primary == nil {
		return f.local.Score(ctx, line, entry)
	}

	callCtx, cancel := f.callContext(ctx)
	defer cancel()

	conf, err := f.primary.Score(callCtx, line, entry)
	if err != nil {
		f.markDegraded(ctx, err)
		return f.local.Score(ctx, line, entry)
	}
	return clamp(conf), nil
}

// ProposeAdjustment implements Scorer.
func (f *Fallback) ProposeAdjustment(ctx context.Context, d domain.Discrepancy) (domain.ProposedEntry, float64, error) {
	if f.primary == nil {
		return f.local.ProposeAdjustment(ctx, d)
	}

	callCtx, cancel := f.callContext(ctx)
	defer cancel()

	entry, conf, err := f.primary.ProposeAdjustment(callCtx, d)
	if err != nil {
		f.markDegraded(ctx, err)
		return f.local.ProposeAdjustment(ctx, d)
	}
	return entry, clamp(conf), nil
}

// Degraded reports whether any call in this wrapper's lifetime fell back
// to the local heuristic.
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

func (f *Fallback) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, f.timeout)
}

func (f *Fallback) markDegraded(ctx context.Context, err error) {
	if f.degraded.CompareAndSwap(false, true) {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Msg("scoring oracle unavailable, falling back to local heuristic")
	}
}

var _ Scorer = (*Fallback)(nil)
var _ Scorer = (*Local)(nil)
var _ Scorer = (*Gemini)(nil)
