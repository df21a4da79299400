package runstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/contaflux/bankrecon/internal/domain"
)

const (
	datasetID            = "reconciliation"
	runsTable            = "runs"
	runMatchesTable      = "run_matches"
	runAdjustmentsTable  = "run_adjustments"
	maxFailureReasonSize = 2000
)

// runRow mirrors the reconciliation.runs schema.
type runRow struct {
	RunID    string `bigquery:"run_id"`
	ClientID string `bigquery:"client_id"`
	Period   string `bigquery:"period"`

	StartedAt   time.Time              `bigquery:"started_ts"`
	CompletedAt bigquery.NullTimestamp `bigquery:"completed_ts"`

	TotalBankLines     int `bigquery:"total_bank_lines"`
	TotalLedgerEntries int `bigquery:"total_ledger_entries"`
	InvalidRecords     int `bigquery:"invalid_records"`
	Matched            int `bigquery:"matched"`
	UnmatchedBank      int `bigquery:"unmatched_bank"`
	UnmatchedLedger    int `bigquery:"unmatched_ledger"`
	Applied            int `bigquery:"applied"`

	Status        string `bigquery:"status"`
	FailureReason string `bigquery:"failure_reason"`
}

type matchRow struct {
	RunID         string    `bigquery:"run_id"`
	BankLineID    string    `bigquery:"bank_line_id"`
	LedgerEntryID string    `bigquery:"ledger_entry_id"`
	Confidence    float64   `bigquery:"confidence"`
	MatchedAt     time.Time `bigquery:"matched_ts"`
}

type adjustmentRow struct {
	RunID         string     `bigquery:"run_id"`
	DiscrepancyID string     `bigquery:"discrepancy_id"`
	EntryDate     civil.Date `bigquery:"entry_date"`
	Amount        int64      `bigquery:"amount_minor_units"`
	Description   string     `bigquery:"description"`
	AccountHint   string     `bigquery:"account_hint"`
	Confidence    float64    `bigquery:"confidence"`
	Status        string     `bigquery:"status"`
	PostedID      string     `bigquery:"posted_id"`
	FailureReason string     `bigquery:"failure_reason"`
}

// BigQueryStore persists run records in BigQuery with a shared client.
type BigQueryStore struct {
	client *bigquery.Client
}

// NewBigQueryStore creates a run store for the given project.
func NewBigQueryStore(ctx context.Context, projectID string) (*BigQueryStore, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryStore: creating client: %w", err)
	}
	return &BigQueryStore{client: client}, nil
}

// Close closes the BigQuery client connection.
func (s *BigQueryStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Begin implements Store. Reservation is a single atomic MERGE: of two
// concurrent invocations with the same idempotency key, exactly one
// inserts the row (created=true, read from the DML affected-row count);
// the other observes zero affected rows and is handed the existing
// record, so no second matching pass ever starts.
func (s *BigQueryStore) Begin(ctx context.Context, rec *domain.RunRecord) (*domain.RunRecord, bool, error) {
	if rec.RunID == "" {
		return nil, false, fmt.Errorf("run ID is required")
	}

	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	q := s.client.Query(fmt.Sprintf(`
		MERGE %s.%s T
		USING (SELECT @run_id AS run_id) S
		ON T.run_id = S.run_id
		WHEN NOT MATCHED THEN
			INSERT (run_id, client_id, period, started_ts, status)
			VALUES (@run_id, @client_id, @period, @started_ts, @status)
	`, datasetID, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: rec.RunID},
		{Name: "client_id", Value: rec.ClientID},
		{Name: "period", Value: rec.Period},
		{Name: "started_ts", Value: started},
		{Name: "status", Value: string(domain.RunStatusRunning)},
	}

	affected, err := s.runDML(ctx, q, "Begin")
	if err != nil {
		return nil, false, err
	}

	if affected == 0 {
		existing, err := s.find(ctx, rec.RunID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("Begin: run %s reserved elsewhere but not readable", rec.RunID)
		}
		return existing, false, nil
	}

	out := *rec
	out.StartedAt = started
	out.Status = domain.RunStatusRunning
	return &out, true, nil
}

// Finalize implements Store.
func (s *BigQueryStore) Finalize(ctx context.Context, rec *domain.RunRecord, matches []domain.MatchResult, adjustments []domain.Adjustment) error {
	completed := time.Now()
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}

	reason := rec.FailureReason
	if len(reason) > maxFailureReasonSize {
		reason = reason[:maxFailureReasonSize]
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    completed_ts = @completed_ts,
		    total_bank_lines = @total_bank_lines,
		    total_ledger_entries = @total_ledger_entries,
		    invalid_records = @invalid_records,
		    matched = @matched,
		    unmatched_bank = @unmatched_bank,
		    unmatched_ledger = @unmatched_ledger,
		    applied = @applied,
		    failure_reason = @failure_reason
		WHERE run_id = @run_id AND status = @running
	`, datasetID, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(rec.Status)},
		{Name: "completed_ts", Value: completed},
		{Name: "total_bank_lines", Value: rec.TotalBankLines},
		{Name: "total_ledger_entries", Value: rec.TotalLedgerEntries},
		{Name: "invalid_records", Value: rec.InvalidRecords},
		{Name: "matched", Value: rec.Matched},
		{Name: "unmatched_bank", Value: rec.UnmatchedBank},
		{Name: "unmatched_ledger", Value: rec.UnmatchedLedger},
		{Name: "applied", Value: rec.Applied},
		{Name: "failure_reason", Value: reason},
		{Name: "run_id", Value: rec.RunID},
		{Name: "running", Value: string(domain.RunStatusRunning)},
	}

	if err := s.runQuery(ctx, q, "Finalize"); err != nil {
		return err
	}

	if len(matches) > 0 {
		rows := make([]*matchRow, 0, len(matches))
		for _, m := range matches {
			rows = append(rows, &matchRow{
				RunID:         rec.RunID,
				BankLineID:    m.BankLineID,
				LedgerEntryID: m.LedgerEntryID,
				Confidence:    m.Confidence,
				MatchedAt:     m.MatchedAt,
			})
		}
		inserter := s.client.Dataset(datasetID).Table(runMatchesTable).Inserter()
		if err := inserter.Put(ctx, rows); err != nil {
			return fmt.Errorf("Finalize: inserting matches: %w", err)
		}
	}

	if len(adjustments) > 0 {
		rows := make([]*adjustmentRow, 0, len(adjustments))
		for _, a := range adjustments {
			rows = append(rows, &adjustmentRow{
				RunID:         rec.RunID,
				DiscrepancyID: a.DiscrepancyID,
				EntryDate:     a.Proposed.Date,
				Amount:        a.Proposed.Amount,
				Description:   a.Proposed.Description,
				AccountHint:   a.Proposed.AccountHint,
				Confidence:    a.Confidence,
				Status:        string(a.Status),
				PostedID:      a.PostedID,
				FailureReason: a.FailureReason,
			})
		}
		inserter := s.client.Dataset(datasetID).Table(runAdjustmentsTable).Inserter()
		if err := inserter.Put(ctx, rows); err != nil {
			return fmt.Errorf("Finalize: inserting adjustments: %w", err)
		}
	}

	return nil
}

// Abort implements Store.
func (s *BigQueryStore) Abort(ctx context.Context, runID string) error {
	q := s.client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s WHERE run_id = @run_id AND status = @running
	`, datasetID, runsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "running", Value: string(domain.RunStatusRunning)},
	}
	return s.runQuery(ctx, q, "Abort")
}

// Get implements Store.
func (s *BigQueryStore) Get(ctx context.Context, runID string) (*domain.RunRecord, error) {
	rec, err := s.find(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return rec, nil
}

// Results implements Store.
func (s *BigQueryStore) Results(ctx context.Context, runID string) ([]domain.MatchResult, []domain.Adjustment, error) {
	mq := s.client.Query(fmt.Sprintf(`
		SELECT run_id, bank_line_id, ledger_entry_id, confidence, matched_ts
		FROM %s.%s WHERE run_id = @run_id
		ORDER BY bank_line_id
	`, datasetID, runMatchesTable))
	mq.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}

	it, err := mq.Read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Results: querying matches: %w", err)
	}

	var matches []domain.MatchResult
	for {
		var row matchRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("Results: reading match row: %w", err)
		}
		matches = append(matches, domain.MatchResult{
			BankLineID:    row.BankLineID,
			LedgerEntryID: row.LedgerEntryID,
			Confidence:    row.Confidence,
			MatchedAt:     row.MatchedAt,
		})
	}

	aq := s.client.Query(fmt.Sprintf(`
		SELECT run_id, discrepancy_id, entry_date, amount_minor_units, description,
		       account_hint, confidence, status, posted_id, failure_reason
		FROM %s.%s WHERE run_id = @run_id
		ORDER BY discrepancy_id
	`, datasetID, runAdjustmentsTable))
	aq.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}

	ait, err := aq.Read(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("Results: querying adjustments: %w", err)
	}

	var adjustments []domain.Adjustment
	for {
		var row adjustmentRow
		err := ait.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("Results: reading adjustment row: %w", err)
		}
		adjustments = append(adjustments, domain.Adjustment{
			DiscrepancyID: row.DiscrepancyID,
			Proposed: domain.ProposedEntry{
				Date:        row.EntryDate,
				Amount:      row.Amount,
				Description: row.Description,
				AccountHint: row.AccountHint,
			},
			Confidence:    row.Confidence,
			Status:        domain.AdjustmentStatus(row.Status),
			PostedID:      row.PostedID,
			FailureReason: row.FailureReason,
		})
	}

	return matches, adjustments, nil
}

func (s *BigQueryStore) find(ctx context.Context, runID string) (*domain.RunRecord, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT run_id, client_id, period, started_ts, completed_ts,
		       total_bank_lines, total_ledger_entries, invalid_records,
		       matched, unmatched_bank, unmatched_ledger, applied,
		       status, failure_reason
		FROM %s.%s WHERE run_id = @run_id LIMIT 1
	`, datasetID, runsTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "run_id", Value: runID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("find: running query: %w", err)
	}

	var row runRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find: reading row: %w", err)
	}

	rec := &domain.RunRecord{
		RunID:              row.RunID,
		ClientID:           row.ClientID,
		Period:             row.Period,
		StartedAt:          row.StartedAt,
		TotalBankLines:     row.TotalBankLines,
		TotalLedgerEntries: row.TotalLedgerEntries,
		InvalidRecords:     row.InvalidRecords,
		Matched:            row.Matched,
		UnmatchedBank:      row.UnmatchedBank,
		UnmatchedLedger:    row.UnmatchedLedger,
		Applied:            row.Applied,
		Status:             domain.RunStatus(row.Status),
		FailureReason:      row.FailureReason,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Timestamp
		rec.CompletedAt = &t
	}
	return rec, nil
}

func (s *BigQueryStore) runQuery(ctx context.Context, q *bigquery.Query, op string) error {
	_, err := s.runDML(ctx, q, op)
	return err
}

// runDML executes a DML statement and reports how many rows it affected.
func (s *BigQueryStore) runDML(ctx context.Context, q *bigquery.Query, op string) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("%s: job error: %w", op, err)
	}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		return stats.NumDMLAffectedRows, nil
	}
	return 0, nil
}

var _ Store = (*BigQueryStore)(nil)
