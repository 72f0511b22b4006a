package bigquery

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/console-reconciler/internal/bigquery"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

const (
	extractionRunsTable = "extraction_runs"
	maxErrorMessageLen  = 2000
)

// truncateMessage cuts s to at most n bytes without splitting a rune.
func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// StartExtractionRunWithClient inserts a new row into extraction_runs with
// status=RUNNING and returns the generated run_id.
func StartExtractionRunWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, label domain.Label) (string, error) {
	runID := uuid.NewString()

	q := client.Query(fmt.Sprintf(`
		INSERT %s (
			run_id,
			label,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@label,
			@started_ts,
			@status
		)
	`, dataset.Table(extractionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "label", Value: label.Code()},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: bq.RunStatusRunning},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartExtractionRun: %w", err)
	}
	return runID, nil
}

// MarkRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are logged, not returned: the run is already failing.
func MarkRunFailedWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = truncateMessage(runErr.Error(), maxErrorMessageLen)
	}

	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, dataset.Table(extractionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: update failed")
	}
}

// MarkRunSucceededWithClient sets status=SUCCESS, finished_ts and the run counters.
func MarkRunSucceededWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, runID string, stats RunStats) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    pages = @pages,
		    record_count = @record_count,
		    duplicate_count = @duplicate_count,
		    missing_key_count = @missing_key_count,
		    gateway_count = @gateway_count,
		    report_uri = @report_uri
		WHERE run_id = @run_id
	`, dataset.Table(extractionRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: bq.RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "pages", Value: stats.Pages},
		{Name: "record_count", Value: stats.RecordCount},
		{Name: "duplicate_count", Value: stats.DuplicateCount},
		{Name: "missing_key_count", Value: stats.MissingKeyCount},
		{Name: "gateway_count", Value: stats.GatewayCount},
		{Name: "report_uri", Value: stats.ReportURI},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// ListRecentRunsWithClient returns the latest extraction runs, newest first.
func ListRecentRunsWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, limit int) ([]*ExtractionRunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			label,
			started_ts,
			finished_ts,
			status,
			error_message,
			pages,
			record_count,
			duplicate_count,
			missing_key_count,
			gateway_count,
			report_uri
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, dataset.Table(extractionRunsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: query read: %w", err)
	}

	var rows []*ExtractionRunRow
	for {
		var r ExtractionRunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// runDML runs a DML statement and waits for it to finish.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
