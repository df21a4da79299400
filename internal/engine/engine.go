package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/contaflux/bankrecon/internal/config"
	"github.com/contaflux/bankrecon/internal/domain"
	"github.com/contaflux/bankrecon/internal/ledger"
	"github.com/contaflux/bankrecon/internal/logger"
	"github.com/contaflux/bankrecon/internal/normalize"
	"github.com/contaflux/bankrecon/internal/runstore"
	"github.com/contaflux/bankrecon/internal/score"
)

// Engine wires the reconciliation pipeline to its collaborators. The
// scoring capability always carries the local heuristic underneath, so an
// unavailable oracle degrades a run instead of failing it. The fallback
// wrapper is constructed per run: its degraded flag describes that run
// only, never an earlier one handled by the same engine.
type Engine struct {
	cfg    *config.Config
	oracle score.Scorer
	local  *score.Local
	source ledger.Source
	poster ledger.Poster
	runs   runstore.Store
}

// New creates an Engine. oracle may be nil; the engine then scores with
// the deterministic local heuristic only.
func New(cfg *config.Config, oracle score.Scorer, source ledger.Source, poster ledger.Poster, runs runstore.Store) *Engine {
	local := score.NewLocal(
		cfg.Matching.DateWeight,
		cfg.Matching.DescriptionWeight,
		cfg.Matching.DateToleranceDays,
		cfg.Matching.SettlementLagDays,
	)
	return &Engine{
		cfg:    cfg,
		oracle: oracle,
		local:  local,
		source: source,
		poster: poster,
		runs:   runs,
	}
}

// Input is one reconciliation request: a statement batch for a single
// client and period. Ledger entries are queried from the collaborator.
type Input struct {
	ClientID  string
	Period    string
	BankLines []domain.RawBankLine
}

// Result is the full outcome of a run. Reused is true when the
// idempotency key short-circuited to a prior record and no matching pass
// was performed.
type Result struct {
	Run           *domain.RunRecord
	Matches       []domain.MatchResult
	Discrepancies []domain.Discrepancy
	Adjustments   []domain.Adjustment
	Reused        bool
}

// Reconcile executes one run end to end. Errors local to single records
// (invalid inputs, posting failures) are aggregated into the RunRecord;
// only a FatalInputError, a collaborator read failure or cancellation
// aborts the run, in which case partial work is discarded.
func (e *Engine) Reconcile(ctx context.Context, input Input) (*Result, error) {
	if strings.TrimSpace(input.ClientID) == "" {
		return nil, &domain.FatalInputError{Reason: "missing clientId"}
	}
	if strings.TrimSpace(input.Period) == "" {
		return nil, &domain.FatalInputError{Reason: "missing period"}
	}

	rawEntries, err := e.source.ListEntries(ctx, input.ClientID, input.Period)
	if err != nil {
		return nil, fmt.Errorf("listing ledger entries: %w", err)
	}

	n := normalize.New(e.cfg.Location())
	lines, invalidBank := n.BankLines(input.BankLines)
	entries, invalidLedger := n.LedgerEntries(rawEntries)

	log := logger.FromContext(ctx)
	for _, inv := range invalidBank {
		log.Warn().Str("record_id", inv.RecordID).Str("field", inv.Field).Msg("excluding invalid bank line")
	}
	for _, inv := range invalidLedger {
		log.Warn().Str("record_id", inv.RecordID).Str("field", inv.Field).Msg("excluding invalid ledger entry")
	}

	rec := &domain.RunRecord{
		RunID:              domain.RunKey(input.ClientID, input.Period, lines, entries),
		ClientID:           input.ClientID,
		Period:             input.Period,
		TotalBankLines:     len(lines),
		TotalLedgerEntries: len(entries),
		InvalidRecords:     len(invalidBank) + len(invalidLedger),
	}

	existing, created, err := e.runs.Begin(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("registering run: %w", err)
	}
	if !created {
		// Same idempotency key: hand back the prior record instead of
		// re-matching or re-posting. In-flight duplicates see the
		// running record and no results yet.
		matches, adjustments, rerr := e.runs.Results(ctx, existing.RunID)
		if rerr != nil {
			log.Warn().
				Err(rerr).
				Str("run_id", existing.RunID).
				Msg("prior run results unavailable, returning record only")
			matches, adjustments = nil, nil
		}
		log.Info().
			Str("run_id", existing.RunID).
			Str("status", string(existing.Status)).
			Msg("duplicate run key, returning prior record")
		return &Result{Run: existing, Matches: matches, Adjustments: adjustments, Reused: true}, nil
	}

	rec = existing
	runLog := logger.ForRun(log, rec.RunID, rec.ClientID, rec.Period)
	ctx = logger.WithContext(ctx, runLog)

	scorer := score.WithFallback(e.oracle, e.local, e.cfg.Scorer.OracleTimeout())
	result, err := e.run(ctx, scorer, rec, lines, entries)
	if err != nil {
		// The run never reached the commit point: release the key so the
		// partial work is discarded and a retry can start clean.
		if abortErr := e.runs.Abort(context.WithoutCancel(ctx), rec.RunID); abortErr != nil {
			runLog.Error().Err(abortErr).Msg("releasing run reservation failed")
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) run(ctx context.Context, scorer *score.Fallback, rec *domain.RunRecord, lines []domain.BankLine, entries []domain.LedgerEntry) (*Result, error) {
	log := logger.FromContext(ctx)

	candidates := GenerateCandidates(lines, entries, e.cfg.Matching.DateToleranceDays)
	if err := e.scoreCandidates(ctx, scorer, lines, entries, candidates); err != nil {
		return nil, err
	}

	// The matcher is a synchronous reduction: it must see every score
	// before its global ordering means anything.
	matches := ResolveMatches(candidates, time.Now())
	discrepancies := ClassifyDiscrepancies(rec.RunID, lines, entries, matches)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	adjustments, err := proposeAdjustments(ctx, scorer, discrepancies)
	if err != nil {
		return nil, err
	}

	applied, eligible, failedPostings := applyAdjustments(
		ctx, e.poster, rec.ClientID, adjustments,
		e.cfg.Thresholds.AutoApply, e.cfg.Scorer.Workers,
	)

	rec.Matched = len(matches)
	rec.UnmatchedBank = rec.TotalBankLines - len(matches)
	rec.UnmatchedLedger = rec.TotalLedgerEntries - len(matches)
	rec.Applied = applied

	switch {
	case eligible > 0 && applied == 0 && failedPostings == eligible:
		rec.Status = domain.RunStatusFailed
		rec.FailureReason = "all ledger postings failed"
	case scorer.Degraded():
		rec.Status = domain.RunStatusDegraded
	default:
		rec.Status = domain.RunStatusCompleted
	}
	now := time.Now()
	rec.CompletedAt = &now

	if err := e.runs.Finalize(ctx, rec, matches, adjustments); err != nil {
		return nil, fmt.Errorf("finalizing run: %w", err)
	}

	log.Info().
		Int("matched", rec.Matched).
		Int("discrepancies", len(discrepancies)).
		Int("applied", rec.Applied).
		Int("invalid_records", rec.InvalidRecords).
		Str("status", string(rec.Status)).
		Msg("reconciliation run finished")

	return &Result{
		Run:           rec,
		Matches:       matches,
		Discrepancies: discrepancies,
		Adjustments:   adjustments,
	}, nil
}

// scoreCandidates fans scoring out across bank lines with a bounded
// worker pool sized for the oracle's rate limits. Workers write to
// disjoint candidate indexes, so no locking is needed; the caller must
// not read confidences until this returns.
func (e *Engine) scoreCandidates(ctx context.Context, scorer *score.Fallback, lines []domain.BankLine, entries []domain.LedgerEntry, candidates []domain.MatchCandidate) error {
	if len(candidates) == 0 {
		return ctx.Err()
	}

	lineByID := make(map[string]domain.BankLine, len(lines))
	for _, l := range lines {
		lineByID[l.ID] = l
	}
	entryByID := make(map[string]domain.LedgerEntry, len(entries))
	for _, en := range entries {
		entryByID[en.ID] = en
	}

	groups := make(map[string][]int)
	var order []string
	for i, c := range candidates {
		if _, ok := groups[c.BankLineID]; !ok {
			order = append(order, c.BankLineID)
		}
		groups[c.BankLineID] = append(groups[c.BankLineID], i)
	}

	workers := e.cfg.Scorer.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(order) {
		workers = len(order)
	}

	log := logger.FromContext(ctx)
	jobCh := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for lineID := range jobCh {
				line := lineByID[lineID]
				for _, i := range groups[lineID] {
					c := &candidates[i]
					conf, err := scorer.Score(ctx, line, entryByID[c.LedgerEntryID])
					if err != nil {
						log.Warn().
							Err(err).
							Str("bank_line_id", c.BankLineID).
							Str("ledger_entry_id", c.LedgerEntryID).
							Msg("scoring failed, candidate keeps zero confidence")
						continue
					}
					c.Confidence = conf
				}
			}
		}()
	}

feed:
	for _, lineID := range order {
		select {
		case jobCh <- lineID:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobCh)
	wg.Wait()

	return ctx.Err()
}
