package bigquery

import (
	"context"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/console-reconciler/internal/domain"
)

// Extraction run statuses.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// RunRepository records one row per extraction run.
type RunRepository interface {
	// StartExtractionRun inserts a new run with status=RUNNING and returns the run_id.
	StartExtractionRun(ctx context.Context, label domain.Label) (string, error)

	// MarkRunFailed sets status=FAILED, finished_ts and error_message for a run.
	MarkRunFailed(ctx context.Context, runID string, runErr error)

	// MarkRunSucceeded sets status=SUCCESS, finished_ts and the run statistics.
	MarkRunSucceeded(ctx context.Context, runID string, stats RunStats) error
}

// ReplayLedger remembers which derived records were already written to the console.
type ReplayLedger interface {
	// HasReplayed reports whether orderIDTag was recorded by an earlier run.
	HasReplayed(ctx context.Context, orderIDTag string) (bool, error)

	// RecordReplay stores a successfully replayed record.
	RecordReplay(ctx context.Context, row *ReplayLedgerRow) error
}

// RunStats are the counters written when an extraction run succeeds.
type RunStats struct {
	Pages           int
	RecordCount     int
	DuplicateCount  int
	MissingKeyCount int
	GatewayCount    int
	ReportURI       string
}

// ExtractionRunRow represents an extraction run record in BigQuery.
type ExtractionRunRow struct {
	RunID string `bigquery:"run_id"`
	Label string `bigquery:"label"`

	StartedTS  time.Time              `bigquery:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`

	Status       string              `bigquery:"status"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"`

	Pages           bigquery.NullInt64 `bigquery:"pages"`
	RecordCount     bigquery.NullInt64 `bigquery:"record_count"`
	DuplicateCount  bigquery.NullInt64 `bigquery:"duplicate_count"`
	MissingKeyCount bigquery.NullInt64 `bigquery:"missing_key_count"`
	GatewayCount    bigquery.NullInt64 `bigquery:"gateway_count"`

	ReportURI bigquery.NullString `bigquery:"report_uri"`
}

// ReplayLedgerRow represents a replayed tax record in BigQuery.
type ReplayLedgerRow struct {
	OrderIDTag string `bigquery:"order_id_tag"`
	Gateway    string `bigquery:"gateway"`
	Label      string `bigquery:"label"`

	SourceDate civil.Date `bigquery:"source_date"`
	Amount     *big.Rat   `bigquery:"amount"`

	ReplayRunID string    `bigquery:"replay_run_id"`
	ReplayedTS  time.Time `bigquery:"replayed_ts"`
}

// NewReplayLedgerRow converts a replayed record into its ledger row.
func NewReplayLedgerRow(rec domain.DerivedTaxRecord, runID string, at time.Time) *ReplayLedgerRow {
	return &ReplayLedgerRow{
		OrderIDTag:  rec.OrderIDTag,
		Gateway:     rec.Gateway,
		Label:       rec.SourceLabel.Code(),
		SourceDate:  civil.DateOf(rec.TaxDateSource),
		Amount:      rec.Amount.Rat(),
		ReplayRunID: runID,
		ReplayedTS:  at.UTC(),
	}
}
