// Package provision creates players in the console from a player file.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/console-reconciler/internal/console"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/jobs"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

// ErrProvision is returned for a player that could not be submitted.
var ErrProvision = errors.New("player provisioning failed")

const (
	ConceptOverlay       locator.Concept = "player.overlay"
	ConceptOpen          locator.Concept = "player.open"
	ConceptPlayerID      locator.Concept = "player.id"
	ConceptPhone         locator.Concept = "player.phone"
	ConceptEmail         locator.Concept = "player.email"
	ConceptAffiliateName locator.Concept = "player.affiliate_name"
	ConceptAffiliateID   locator.Concept = "player.affiliate_id"
)

// Provisioner fills the "Add New Player" form.
type Provisioner struct {
	con         *console.Console
	overlayWait time.Duration
	jobs        jobs.JobStore
}

// New creates a Provisioner. store may be nil.
func New(con *console.Console, overlayWait time.Duration, store jobs.JobStore) *Provisioner {
	return &Provisioner{con: con, overlayWait: overlayWait, jobs: store}
}

// Provision submits one player.
func (p *Provisioner) Provision(ctx context.Context, rec domain.PlayerRecord) error {
	log := logger.FromContext(ctx).With().Int("seq", rec.Seq).Str("phone", rec.Phone).Logger()

	fail := func(step string, err error) error {
		return fmt.Errorf("%w: #%d %s: %v", ErrProvision, rec.Seq, step, err)
	}

	if err := p.con.WaitGone(ctx, ConceptOverlay, p.overlayWait); err != nil {
		log.Warn().Err(err).Msg("player overlay still showing, continuing")
	}
	if err := p.con.WaitOverlays(ctx); err != nil {
		log.Warn().Err(err).Msg("loading overlay still showing, continuing")
	}

	if _, err := p.con.Click(ctx, ConceptOpen, p.con.Present(ConceptPlayerID)); err != nil {
		return fail("open form", err)
	}

	fields := []struct {
		concept locator.Concept
		value   string
		skip    bool
	}{
		{ConceptPlayerID, rec.Phone, false},
		{ConceptPhone, rec.Phone, false},
		{ConceptEmail, rec.Email, !rec.HasEmail()},
		{ConceptAffiliateName, rec.Affiliate, false},
		{ConceptAffiliateID, rec.Affiliate, false},
	}
	for _, f := range fields {
		if f.skip {
			log.Info().Str("field", string(f.concept)).Msg("no value, skipping field")
			continue
		}
		if err := p.con.Type(ctx, f.concept, f.value); err != nil {
			return fail(string(f.concept), err)
		}
	}

	if err := p.con.Press(ctx, ConceptAffiliateID, ui.KeyEnter); err != nil {
		return fail("submit", err)
	}
	log.Info().Msg("player submitted")
	return nil
}

// Result summarises a provisioning run.
type Result struct {
	Submitted int
	Failed    int
	Errors    []error
}

// Run provisions players in order. A failing player is logged and the run
// continues. The error is non-nil only when ctx ends.
func (p *Provisioner) Run(ctx context.Context, players []domain.PlayerRecord) (Result, error) {
	log := logger.FromContext(ctx)
	runID := uuid.NewString()

	var res Result
	for _, rec := range players {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		jobID := p.startJob(ctx, runID, rec)

		err := p.Provision(ctx, rec)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error().Err(err).Int("seq", rec.Seq).Msg("player skipped")
			res.Failed++
			res.Errors = append(res.Errors, err)
			p.endJob(ctx, jobID, jobs.JobStatusFailed, err.Error())
			continue
		}
		res.Submitted++
		p.endJob(ctx, jobID, jobs.JobStatusCompleted, "")
	}

	log.Info().Int("submitted", res.Submitted).Int("failed", res.Failed).Msg("provisioning finished")
	return res, nil
}

func (p *Provisioner) startJob(ctx context.Context, runID string, rec domain.PlayerRecord) string {
	if p.jobs == nil {
		return ""
	}
	job := &jobs.Job{
		JobID:     uuid.NewString(),
		Type:      jobs.JobTypeProvisionPlayer,
		RunID:     runID,
		Key:       rec.Phone,
		Status:    jobs.JobStatusRunning,
		CreatedAt: time.Now(),
	}
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("could not save provisioning job")
		return ""
	}
	return job.JobID
}

func (p *Provisioner) endJob(ctx context.Context, jobID string, status jobs.JobStatus, msg string) {
	if jobID == "" {
		return
	}
	if err := p.jobs.UpdateJobStatus(ctx, jobID, status, msg); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", jobID).Msg("could not update provisioning job")
	}
}
