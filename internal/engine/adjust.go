package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/contaflux/bankrecon/internal/domain"
	"github.com/contaflux/bankrecon/internal/ledger"
	"github.com/contaflux/bankrecon/internal/logger"
	"github.com/contaflux/bankrecon/internal/score"
)

// proposeAdjustments asks the scoring capability for one corrective
// posting per discrepancy. Every adjustment starts as proposed.
func proposeAdjustments(ctx context.Context, scorer score.Scorer, discrepancies []domain.Discrepancy) ([]domain.Adjustment, error) {
	adjustments := make([]domain.Adjustment, 0, len(discrepancies))
	for _, d := range discrepancies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, conf, err := scorer.ProposeAdjustment(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("proposing adjustment for discrepancy %s: %w", d.ID, err)
		}
		adjustments = append(adjustments, domain.Adjustment{
			DiscrepancyID: d.ID,
			Proposed:      entry,
			Confidence:    conf,
			Status:        domain.AdjustmentProposed,
		})
	}
	return adjustments, nil
}

// applyAdjustments runs the auto-apply gate over the proposed
// adjustments. An adjustment is posted only when its confidence is
// STRICTLY above the threshold; everything else transitions to
// pending_review. Postings run concurrently (adjustments are independent)
// with the discrepancy ID as the collaborator-side idempotency token, so
// retries after unknown-outcome timeouts cannot double-post. A posting
// failure is per-item: the adjustment stays proposed and the rest of the
// run proceeds.
func applyAdjustments(ctx context.Context, poster ledger.Poster, clientID string, adjustments []domain.Adjustment, threshold float64, workers int) (applied, eligible, failed int) {
	log := logger.FromContext(ctx)

	var eligibleIdx []int
	for i := range adjustments {
		if adjustments[i].Confidence > threshold {
			eligibleIdx = append(eligibleIdx, i)
		} else {
			adjustments[i].Status = domain.AdjustmentPendingReview
		}
	}
	eligible = len(eligibleIdx)
	if eligible == 0 {
		return 0, 0, 0
	}

	if workers <= 0 {
		workers = 1
	}
	if workers > eligible {
		workers = eligible
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	idxCh := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				adj := &adjustments[i]
				postedID, err := poster.Post(ctx, clientID, adj.Proposed, adj.DiscrepancyID)
				if err != nil {
					pf := &domain.PostingFailureError{DiscrepancyID: adj.DiscrepancyID, Err: err}
					log.Warn().
						Err(pf).
						Str("discrepancy_id", adj.DiscrepancyID).
						Msg("posting failed, adjustment stays proposed")
					adj.FailureReason = err.Error()
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				adj.Status = domain.AdjustmentApplied
				adj.PostedID = postedID
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}

	for _, i := range eligibleIdx {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	return applied, eligible, failed
}
