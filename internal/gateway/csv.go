// Package gateway loads raw statement and ledger records from the
// ingestion edges: local CSV files for the CLI, GCS JSON batches for the
// worker. Records are returned unparsed; the Normalizer decides what is
// valid.
package gateway

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/contaflux/bankrecon/internal/domain"
)

// CSVRepository reads statement and ledger exports in the platform's CSV
// layouts.
type CSVRepository struct{}

// NewCSVRepository creates a new repository instance.
func NewCSVRepository() *CSVRepository {
	return &CSVRepository{}
}

// ReadBankLines reads a bank statement CSV with the layout
// id,date,description,amount,type. Field contents are left raw; only
// structural problems (missing file, short rows) are errors here.
func (r *CSVRepository) ReadBankLines(path string) ([]domain.RawBankLine, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	var lines []domain.RawBankLine
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record from %s: %w", path, err)
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("short row in %s: expected 5 columns, got %d", path, len(record))
		}

		lines = append(lines, domain.RawBankLine{
			ID:          record[0],
			Date:        record[1],
			Description: record[2],
			Amount:      record[3],
			Type:        record[4],
		})
	}
	return lines, nil
}

// ReadLedgerEntries reads a ledger export CSV with the layout
// id,client_id,date,description,amount.
func (r *CSVRepository) ReadLedgerEntries(path string) ([]domain.RawLedgerEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	var entries []domain.RawLedgerEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading record from %s: %w", path, err)
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("short row in %s: expected 5 columns, got %d", path, len(record))
		}

		entries = append(entries, domain.RawLedgerEntry{
			ID:          record[0],
			ClientID:    record[1],
			Date:        record[2],
			Description: record[3],
			Amount:      record[4],
		})
	}
	return entries, nil
}
