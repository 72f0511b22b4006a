package pipeline

import (
	"context"

	bq "github.com/dvloznov/console-reconciler/internal/bigquery"
	"github.com/dvloznov/console-reconciler/internal/derive"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/extract"
	"github.com/dvloznov/console-reconciler/internal/gcs"
	"github.com/dvloznov/console-reconciler/internal/replay"
)

// StorageService is the archive target for written reports.
type StorageService = gcs.StorageService

// RunRepository records extraction runs.
type RunRepository = bq.RunRepository

// RunStats are the counters of a finished extraction run.
type RunStats = bq.RunStats

// Extractor walks the transaction grid.
type Extractor interface {
	ApplyStatusFilter(ctx context.Context) error
	Run(ctx context.Context, sess *extract.Session) (*extract.Session, error)
}

// Deriver turns report sources into tax records.
type Deriver interface {
	FromSources(ctx context.Context, sources []derive.Source) ([]domain.DerivedTaxRecord, error)
}

// BatchReplayer replays derived records.
type BatchReplayer interface {
	Run(ctx context.Context, runID string, recs []domain.DerivedTaxRecord) (replay.Result, error)
}
