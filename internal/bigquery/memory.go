package bigquery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

// MemoryLedger is a process-local ReplayLedger used when no dataset is configured.
// It only prevents duplicates within a single invocation.
type MemoryLedger struct {
	mu   sync.RWMutex
	rows map[string]ReplayLedgerRow
}

// NewMemoryLedger creates an empty ledger, optionally seeded with tags.
func NewMemoryLedger(tags ...string) *MemoryLedger {
	l := &MemoryLedger{rows: make(map[string]ReplayLedgerRow)}
	for _, t := range tags {
		l.rows[t] = ReplayLedgerRow{OrderIDTag: t}
	}
	return l
}

func (l *MemoryLedger) HasReplayed(ctx context.Context, orderIDTag string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.rows[orderIDTag]
	return ok, nil
}

func (l *MemoryLedger) RecordReplay(ctx context.Context, row *ReplayLedgerRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[row.OrderIDTag] = *row
	return nil
}

// Len returns the number of recorded tags.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

// LogRunRepository is a RunRepository that only logs; used when no dataset is configured.
type LogRunRepository struct{}

func (LogRunRepository) StartExtractionRun(ctx context.Context, label domain.Label) (string, error) {
	id := uuid.NewString()
	log := logger.FromContext(ctx)
	log.Info().Str("run_id", id).Str("label", label.Code()).Str("status", RunStatusRunning).Msg("extraction run started")
	return id, nil
}

func (LogRunRepository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)
	log.Error().Err(runErr).Str("run_id", runID).Str("status", RunStatusFailed).Msg("extraction run failed")
}

func (LogRunRepository) MarkRunSucceeded(ctx context.Context, runID string, stats RunStats) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", runID).
		Str("status", RunStatusSuccess).
		Int("pages", stats.Pages).
		Int("records", stats.RecordCount).
		Int("duplicates", stats.DuplicateCount).
		Int("missing_keys", stats.MissingKeyCount).
		Str("report_uri", stats.ReportURI).
		Msg("extraction run finished")
	return nil
}

var (
	_ ReplayLedger  = (*MemoryLedger)(nil)
	_ RunRepository = LogRunRepository{}
)
