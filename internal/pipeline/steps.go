package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dvloznov/console-reconciler/internal/extract"
	"github.com/dvloznov/console-reconciler/internal/gcsuploader"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/report"
)

// StartRunStep starts an extraction run (status=RUNNING).
type StartRunStep struct {
	Runs RunRepository
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	runID, err := s.Runs.StartExtractionRun(ctx, state.Label)
	if err != nil {
		return fmt.Errorf("StartRunStep: %w", err)
	}
	state.RunID = runID
	return nil
}

// StatusFilterStep narrows the grid to approved transactions. Unless
// Required is set, a failed filter only logs a warning.
type StatusFilterStep struct {
	Extractor Extractor
	Runs      RunRepository
	Required  bool
}

func (s *StatusFilterStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Extractor.ApplyStatusFilter(ctx); err != nil {
		if !s.Required {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("status filter not applied, extracting unfiltered grid")
			return nil
		}
		s.Runs.MarkRunFailed(ctx, state.RunID, err)
		return fmt.Errorf("StatusFilterStep: %w", err)
	}
	return nil
}

// ExtractStep walks every grid page into the session.
type ExtractStep struct {
	Extractor Extractor
	Runs      RunRepository
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Session == nil {
		state.Session = extract.NewSession()
	}
	sess, err := s.Extractor.Run(ctx, state.Session)
	if sess != nil {
		state.Session = sess
	}
	if err != nil {
		s.Runs.MarkRunFailed(ctx, state.RunID, err)
		return fmt.Errorf("ExtractStep: %w", err)
	}
	return nil
}

// AggregateStep groups the session into per-gateway totals.
type AggregateStep struct{}

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Aggregates = report.Aggregate(state.Session)
	total, n := report.GrandTotal(state.Aggregates)
	log := logger.FromContext(ctx)
	log.Info().
		Int("gateways", len(state.Aggregates)).
		Int("records", n).
		Str("total", total.StringFixed(2)).
		Msg("session aggregated")
	return nil
}

// WriteReportStep writes the canonical report file.
type WriteReportStep struct {
	Dir  string
	Runs RunRepository
}

func (s *WriteReportStep) Execute(ctx context.Context, state *PipelineState) error {
	dir := s.Dir
	if dir == "" {
		dir = DefaultReportDir
	}
	path := filepath.Join(dir, report.FileName(state.Label))
	if err := report.WriteFile(path, state.Aggregates, state.Label); err != nil {
		s.Runs.MarkRunFailed(ctx, state.RunID, err)
		return fmt.Errorf("WriteReportStep: %w", err)
	}
	state.ReportPath = path
	log := logger.FromContext(ctx)
	log.Info().Str("path", path).Msg("report written")
	return nil
}

// ArchiveReportStep uploads the report when a bucket is configured.
// An upload failure is logged; the local report stays authoritative.
type ArchiveReportStep struct {
	Storage StorageService
	Bucket  string
}

func (s *ArchiveReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Bucket == "" || s.Storage == nil {
		return nil
	}
	uri, err := gcsuploader.ArchiveReport(ctx, s.Storage, s.Bucket, state.Label, state.ReportPath)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("report not archived")
		return nil
	}
	state.ReportURI = uri
	return nil
}

// MarkRunSucceededStep closes the run with its counters.
type MarkRunSucceededStep struct {
	Runs RunRepository
}

func (s *MarkRunSucceededStep) Execute(ctx context.Context, state *PipelineState) error {
	stats := RunStats{
		GatewayCount: len(state.Aggregates),
		ReportURI:    state.ReportURI,
	}
	if stats.ReportURI == "" {
		stats.ReportURI = state.ReportPath
	}
	if sess := state.Session; sess != nil {
		stats.Pages = sess.CurrentPage
		stats.RecordCount = sess.Len()
		stats.DuplicateCount = sess.DuplicateCount
		stats.MissingKeyCount = sess.MissingKeyCount
	}
	if err := s.Runs.MarkRunSucceeded(ctx, state.RunID, stats); err != nil {
		return fmt.Errorf("MarkRunSucceededStep: %w", err)
	}
	return nil
}

// DeriveStep reads report sources into tax records.
type DeriveStep struct {
	Deriver Deriver
}

func (s *DeriveStep) Execute(ctx context.Context, state *PipelineState) error {
	recs, err := s.Deriver.FromSources(ctx, state.Sources)
	if err != nil {
		return fmt.Errorf("DeriveStep: %w", err)
	}
	state.Records = recs
	return nil
}

// ReplayStep replays the derived records.
type ReplayStep struct {
	Batch BatchReplayer
}

func (s *ReplayStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Batch.Run(ctx, state.RunID, state.Records)
	state.Replay = res
	if err != nil {
		return fmt.Errorf("ReplayStep: %w", err)
	}
	return nil
}
