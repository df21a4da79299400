package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/contaflux/bankrecon/internal/domain"
)

const (
	datasetID          = "accounting"
	ledgerEntriesTable = "ledger_entries"
)

// entryRow mirrors the accounting.ledger_entries schema.
type entryRow struct {
	EntryID     string     `bigquery:"entry_id"`
	ClientID    string     `bigquery:"client_id"`
	Period      string     `bigquery:"period"`
	EntryDate   civil.Date `bigquery:"entry_date"`
	Description string     `bigquery:"description"`
	Amount      string     `bigquery:"amount"` // decimal string, parsed by the Normalizer
	PostingRef  string     `bigquery:"posting_ref"`
	PostedTS    time.Time  `bigquery:"posted_ts"`
}

// BigQueryLedger reads and posts ledger entries against BigQuery with a
// shared client.
type BigQueryLedger struct {
	client *bigquery.Client
}

// NewBigQueryLedger creates a ledger collaborator for the given project.
func NewBigQueryLedger(ctx context.Context, projectID string) (*BigQueryLedger, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLedger: creating client: %w", err)
	}
	return &BigQueryLedger{client: client}, nil
}

// Close closes the BigQuery client connection.
func (l *BigQueryLedger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// ListEntries implements Source.
func (l *BigQueryLedger) ListEntries(ctx context.Context, clientID, period string) ([]domain.RawLedgerEntry, error) {
	q := l.client.Query(fmt.Sprintf(`
		SELECT entry_id, client_id, entry_date, description, amount
		FROM %s.%s
		WHERE client_id = @client_id AND period = @period
		ORDER BY entry_date, entry_id
	`, datasetID, ledgerEntriesTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "client_id", Value: clientID},
		{Name: "period", Value: period},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListEntries: running query: %w", err)
	}

	var entries []domain.RawLedgerEntry
	for {
		var row entryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListEntries: reading row: %w", err)
		}
		entries = append(entries, domain.RawLedgerEntry{
			ID:          row.EntryID,
			ClientID:    row.ClientID,
			Date:        row.EntryDate.String(),
			Description: row.Description,
			Amount:      row.Amount,
		})
	}
	return entries, nil
}

// Post implements Poster. The idempotency token is stored as posting_ref;
// a row with the same ref short-circuits to the previously posted ID, so a
// retried call after an unknown-outcome timeout cannot double-post.
func (l *BigQueryLedger) Post(ctx context.Context, clientID string, entry domain.ProposedEntry, idempotencyToken string) (string, error) {
	if idempotencyToken == "" {
		return "", fmt.Errorf("posting requires an idempotency token")
	}

	if existing, err := l.findByPostingRef(ctx, idempotencyToken); err != nil {
		return "", err
	} else if existing != "" {
		return existing, nil
	}

	entryID := fmt.Sprintf("adj-%s", idempotencyToken)
	q := l.client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			entry_id,
			client_id,
			period,
			entry_date,
			description,
			amount,
			posting_ref,
			posted_ts
		)
		VALUES (
			@entry_id,
			@client_id,
			FORMAT_DATE('%%Y-%%m', @entry_date),
			@entry_date,
			@description,
			@amount,
			@posting_ref,
			@posted_ts
		)
	`, datasetID, ledgerEntriesTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "entry_id", Value: entryID},
		{Name: "client_id", Value: clientID},
		{Name: "entry_date", Value: entry.Date},
		{Name: "description", Value: entry.Description},
		{Name: "amount", Value: minorUnitsToDecimalString(entry.Amount)},
		{Name: "posting_ref", Value: idempotencyToken},
		{Name: "posted_ts", Value: time.Now()},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("Post: running insert query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("Post: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return "", fmt.Errorf("Post: job error: %w", err)
	}

	return entryID, nil
}

func (l *BigQueryLedger) findByPostingRef(ctx context.Context, ref string) (string, error) {
	q := l.client.Query(fmt.Sprintf(`
		SELECT entry_id FROM %s.%s WHERE posting_ref = @posting_ref LIMIT 1
	`, datasetID, ledgerEntriesTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "posting_ref", Value: ref}}

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("findByPostingRef: running query: %w", err)
	}

	var row struct {
		EntryID string `bigquery:"entry_id"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("findByPostingRef: reading row: %w", err)
	}
	return row.EntryID, nil
}

// minorUnitsToDecimalString renders signed minor units as a two-decimal
// string without going through floats.
func minorUnitsToDecimalString(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

var _ Source = (*BigQueryLedger)(nil)
var _ Poster = (*BigQueryLedger)(nil)
