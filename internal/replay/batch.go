package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	bq "github.com/dvloznov/console-reconciler/internal/bigquery"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/jobs"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

// Replayer replays a single record.
type Replayer interface {
	Replay(ctx context.Context, rec domain.DerivedTaxRecord) (bool, error)
}

// Result summarises a batch.
type Result struct {
	RunID    string
	Replayed int
	// Unverified counts replayed records whose form did not close.
	Unverified int
	Skipped    int
	Failed     int
	Errors     []error
}

// Batch replays records one after another. A failing record never stops the batch.
type Batch struct {
	Replayer Replayer
	// Ledger, when set, filters out records replayed by earlier runs.
	Ledger bq.ReplayLedger
	// Jobs, when set, receives one job per record.
	Jobs jobs.JobStore
	// Force replays records even when the ledger already has them.
	Force bool

	now func() time.Time
}

func (b *Batch) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// Run replays recs in order. The error is non-nil only when ctx ends.
func (b *Batch) Run(ctx context.Context, runID string, recs []domain.DerivedTaxRecord) (Result, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	log := logger.FromContext(ctx).With().Str("replay_run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)

	res := Result{RunID: runID}
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := log.With().Int("index", i).Str("order_id_tag", rec.OrderIDTag).Logger()

		job := b.newJob(ctx, runID, rec)

		if b.Ledger != nil && !b.Force {
			done, err := b.Ledger.HasReplayed(ctx, rec.OrderIDTag)
			if err != nil {
				log.Error().Err(err).Msg("ledger lookup failed, not replaying")
				res.Failed++
				res.Errors = append(res.Errors, err)
				b.finish(ctx, job, jobs.JobStatusFailed, false, err)
				continue
			}
			if done {
				log.Info().Msg("already replayed, skipping")
				res.Skipped++
				b.finish(ctx, job, jobs.JobStatusSkipped, false, nil)
				continue
			}
		}

		b.update(ctx, job, jobs.JobStatusRunning, "")
		verified, err := b.Replayer.Replay(ctx, rec)
		switch {
		case errors.Is(err, ErrUnmappedGateway):
			log.Warn().Str("gateway", rec.Gateway).Msg("gateway not mapped, skipping record")
			res.Skipped++
			b.finish(ctx, job, jobs.JobStatusSkipped, false, err)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Msg("record abandoned")
			res.Failed++
			res.Errors = append(res.Errors, err)
			b.finish(ctx, job, jobs.JobStatusFailed, false, err)
			continue
		}

		res.Replayed++
		b.finish(ctx, job, jobs.JobStatusCompleted, verified, nil)
		if !verified {
			res.Unverified++
			log.Warn().Msg("submission not confirmed, not recording in ledger")
			continue
		}
		if b.Ledger != nil {
			if err := b.Ledger.RecordReplay(ctx, bq.NewReplayLedgerRow(rec, runID, b.clock())); err != nil {
				log.Error().Err(err).Msg("could not record replay in ledger")
			}
		}
	}

	log.Info().
		Int("replayed", res.Replayed).
		Int("unverified", res.Unverified).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("replay batch finished")
	return res, nil
}

func (b *Batch) newJob(ctx context.Context, runID string, rec domain.DerivedTaxRecord) *jobs.Job {
	if b.Jobs == nil {
		return nil
	}
	job := &jobs.Job{
		JobID:     uuid.NewString(),
		Type:      jobs.JobTypeReplayRecord,
		RunID:     runID,
		Key:       rec.OrderIDTag,
		Gateway:   rec.Gateway,
		Status:    jobs.JobStatusPending,
		CreatedAt: b.clock(),
	}
	if err := b.Jobs.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("could not save replay job")
		return nil
	}
	return job
}

func (b *Batch) update(ctx context.Context, job *jobs.Job, status jobs.JobStatus, msg string) {
	if job == nil {
		return
	}
	if err := b.Jobs.UpdateJobStatus(ctx, job.JobID, status, msg); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("could not update replay job")
	}
}

func (b *Batch) finish(ctx context.Context, job *jobs.Job, status jobs.JobStatus, verified bool, cause error) {
	if job == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if verified {
		if err := b.markVerified(ctx, job.JobID); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("job_id", job.JobID).Msg("could not mark replay job verified")
		}
	}
	b.update(ctx, job, status, msg)
}

func (b *Batch) markVerified(ctx context.Context, jobID string) error {
	stored, err := b.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("markVerified: get job: %w", err)
	}
	stored.Verified = true
	if err := b.Jobs.SaveJob(ctx, stored); err != nil {
		return fmt.Errorf("markVerified: save job: %w", err)
	}
	return nil
}
