// Package pipeline composes extraction, reporting, derivation and replay
// into ordered steps sharing one PipelineState.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/console-reconciler/internal/derive"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/extract"
	"github.com/dvloznov/console-reconciler/internal/replay"
)

// PipelineStep represents a single step in a pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Label domain.Label
	RunID string

	Session    *extract.Session
	Aggregates []domain.GatewayAggregate
	ReportPath string
	ReportURI  string

	Sources []derive.Source
	Records []domain.DerivedTaxRecord
	Replay  replay.Result
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// ExtractionDeps are the collaborators of the extraction pipeline.
type ExtractionDeps struct {
	Extractor    Extractor
	Runs         RunRepository
	Storage      StorageService
	Bucket       string
	ReportDir    string
	StatusFilter bool
}

// NewExtractionPipeline builds: start run, status filter, extract, aggregate,
// write report, archive report, mark run succeeded.
func NewExtractionPipeline(d ExtractionDeps) *Pipeline {
	steps := []PipelineStep{&StartRunStep{Runs: d.Runs}}
	if d.StatusFilter {
		steps = append(steps, &StatusFilterStep{Extractor: d.Extractor, Runs: d.Runs})
	}
	steps = append(steps,
		&ExtractStep{Extractor: d.Extractor, Runs: d.Runs},
		&AggregateStep{},
		&WriteReportStep{Dir: d.ReportDir, Runs: d.Runs},
		&ArchiveReportStep{Storage: d.Storage, Bucket: d.Bucket},
		&MarkRunSucceededStep{Runs: d.Runs},
	)
	return NewPipeline(steps...)
}

// NewReplayPipeline builds: derive, replay.
func NewReplayPipeline(deriver Deriver, batch BatchReplayer) *Pipeline {
	return NewPipeline(
		&DeriveStep{Deriver: deriver},
		&ReplayStep{Batch: batch},
	)
}
