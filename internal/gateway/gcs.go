package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/contaflux/bankrecon/internal/domain"
)

// StatementBatch is the JSON document the upload edge writes to GCS: one
// client's statement lines for one period.
type StatementBatch struct {
	ClientID string               `json:"client_id"`
	Period   string               `json:"period"`
	Lines    []domain.RawBankLine `json:"lines"`
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	// gcsURI example: gs://my-bucket/path/to/batch.json
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	bucketName := parts[0]
	objectPath := parts[1]

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: creating storage client: %w", err)
	}
	defer storageClient.Close()

	rc, err := storageClient.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}

	return data, nil
}

// ParseStatementBatch decodes an uploaded statement batch document.
func ParseStatementBatch(data []byte) (*StatementBatch, error) {
	var batch StatementBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing statement batch: %w", err)
	}
	if batch.ClientID == "" {
		return nil, fmt.Errorf("statement batch missing client_id")
	}
	if batch.Period == "" {
		return nil, fmt.Errorf("statement batch missing period")
	}
	return &batch, nil
}

// FetchStatementBatch downloads and decodes a statement batch from GCS.
func FetchStatementBatch(ctx context.Context, gcsURI string) (*StatementBatch, error) {
	data, err := FetchFromGCS(ctx, gcsURI)
	if err != nil {
		return nil, err
	}
	return ParseStatementBatch(data)
}
