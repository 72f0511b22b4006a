package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const replayLedgerTable = "replay_ledger"

// HasReplayedWithClient reports whether orderIDTag is present in replay_ledger.
func HasReplayedWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, orderIDTag string) (bool, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE order_id_tag = @order_id_tag
	`, dataset.Table(replayLedgerTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "order_id_tag", Value: orderIDTag},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("HasReplayed: query read: %w", err)
	}

	var row struct {
		N int64 `bigquery:"n"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasReplayed: iter next: %w", err)
	}
	return row.N > 0, nil
}

// RecordReplayWithClient appends row to replay_ledger.
func RecordReplayWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, row *ReplayLedgerRow) error {
	if row == nil || row.OrderIDTag == "" {
		return fmt.Errorf("RecordReplay: order_id_tag is required")
	}

	table := client.DatasetInProject(dataset.ProjectID, dataset.DatasetID).Table(replayLedgerTable)
	if err := table.Inserter().Put(ctx, []*ReplayLedgerRow{row}); err != nil {
		return fmt.Errorf("RecordReplay: inserting row: %w", err)
	}
	return nil
}
