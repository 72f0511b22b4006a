package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/console-reconciler/internal/bigquery"
	"github.com/dvloznov/console-reconciler/internal/domain"
)

// Re-export interfaces and rows from the shared package.
type (
	RunRepository    = bq.RunRepository
	ReplayLedger     = bq.ReplayLedger
	RunStats         = bq.RunStats
	ExtractionRunRow = bq.ExtractionRunRow
	ReplayLedgerRow  = bq.ReplayLedgerRow
)

// Dataset addresses the ledger dataset.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, backtick-quoted table name.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// BigQueryRunRepository is the BigQuery implementation of RunRepository.
// It holds a shared client for the lifetime of a CLI invocation.
type BigQueryRunRepository struct {
	client  *bigquery.Client
	dataset Dataset
}

// NewBigQueryRunRepository creates a new BigQueryRunRepository.
func NewBigQueryRunRepository(ctx context.Context, dataset Dataset) (*BigQueryRunRepository, error) {
	client, err := bigquery.NewClient(ctx, dataset.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryRunRepository: creating client: %w", err)
	}
	return &BigQueryRunRepository{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryRunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// StartExtractionRun delegates to StartExtractionRunWithClient.
func (r *BigQueryRunRepository) StartExtractionRun(ctx context.Context, label domain.Label) (string, error) {
	return StartExtractionRunWithClient(ctx, r.client, r.dataset, label)
}

// MarkRunFailed delegates to MarkRunFailedWithClient.
func (r *BigQueryRunRepository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkRunFailedWithClient(ctx, r.client, r.dataset, runID, runErr)
}

// MarkRunSucceeded delegates to MarkRunSucceededWithClient.
func (r *BigQueryRunRepository) MarkRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	return MarkRunSucceededWithClient(ctx, r.client, r.dataset, runID, stats)
}

// ListRecentRuns delegates to ListRecentRunsWithClient.
func (r *BigQueryRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*ExtractionRunRow, error) {
	return ListRecentRunsWithClient(ctx, r.client, r.dataset, limit)
}

// BigQueryReplayLedger is the BigQuery implementation of ReplayLedger.
type BigQueryReplayLedger struct {
	client  *bigquery.Client
	dataset Dataset
}

// NewBigQueryReplayLedger creates a new BigQueryReplayLedger.
func NewBigQueryReplayLedger(ctx context.Context, dataset Dataset) (*BigQueryReplayLedger, error) {
	client, err := bigquery.NewClient(ctx, dataset.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryReplayLedger: creating client: %w", err)
	}
	return &BigQueryReplayLedger{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (l *BigQueryReplayLedger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// HasReplayed delegates to HasReplayedWithClient.
func (l *BigQueryReplayLedger) HasReplayed(ctx context.Context, orderIDTag string) (bool, error) {
	return HasReplayedWithClient(ctx, l.client, l.dataset, orderIDTag)
}

// RecordReplay delegates to RecordReplayWithClient.
func (l *BigQueryReplayLedger) RecordReplay(ctx context.Context, row *ReplayLedgerRow) error {
	return RecordReplayWithClient(ctx, l.client, l.dataset, row)
}

var (
	_ RunRepository = (*BigQueryRunRepository)(nil)
	_ ReplayLedger  = (*BigQueryReplayLedger)(nil)
)
