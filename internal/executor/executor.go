// Package executor performs single-element interactions on a console page
// that is frequently covered by loading overlays and re-rendered under the
// caller's feet.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

const (
	DefaultOverlayTimeout = 10 * time.Second
	DefaultSettleWindow   = 2 * time.Second
)

// Options bound the executor's waits.
type Options struct {
	// Overlays are the indicators that intercept pointer events while visible.
	Overlays []ui.Selector
	// OverlayTimeout bounds one overlay wait across all indicators.
	OverlayTimeout time.Duration
	// SettleWindow is how long a verify predicate may take to become true.
	SettleWindow time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.OverlayTimeout <= 0 {
		o.OverlayTimeout = DefaultOverlayTimeout
	}
	if o.SettleWindow <= 0 {
		o.SettleWindow = DefaultSettleWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = ui.DefaultPollInterval
	}
	return o
}

// Executor is the resilient click/type primitive.
// It never re-locates elements; a stale target is reported to the caller.
type Executor struct {
	page ui.Scope
	opts Options
}

// New creates an executor that checks overlays on page.
func New(page ui.Scope, opts Options) *Executor {
	return &Executor{page: page, opts: opts.withDefaults()}
}

// Options returns the effective options.
func (x *Executor) Options() Options {
	return x.opts
}

// Click performs a click, see Perform.
func (x *Executor) Click(ctx context.Context, el ui.Element, verify ui.Condition) (bool, error) {
	return x.Perform(ctx, Click(), el, verify)
}

// Type types text into el, see Perform.
func (x *Executor) Type(ctx context.Context, el ui.Element, text string) (bool, error) {
	return x.Perform(ctx, Type(text), el, nil)
}

// Press sends key to el, see Perform.
func (x *Executor) Press(ctx context.Context, el ui.Element, key ui.Key) (bool, error) {
	return x.Perform(ctx, Press(key), el, nil)
}

// Perform runs action against target.
//
// A returned error means the action itself could not be carried out: either
// the target went stale (errors.Is ErrStaleReference) or every recovery step
// failed (errors.Is ErrInteractionBlocked). When the action went through but
// verify never held, Perform returns false with a nil error.
func (x *Executor) Perform(ctx context.Context, action Action, target ui.Element, verify ui.Condition) (bool, error) {
	log := logger.FromContext(ctx)

	if err := action.native(ctx, target); err != nil {
		if err := x.recover(ctx, action, target, err); err != nil {
			return false, err
		}
	}

	if verify == nil {
		return true, nil
	}
	if x.settle(ctx, verify) {
		return true, nil
	}

	found, _ := x.WaitForOverlays(ctx)
	if !found {
		log.Warn().Str("action", action.Name()).Msg("verification failed, no overlay to clear")
		return false, ctx.Err()
	}

	log.Debug().Str("action", action.Name()).Msg("verification failed behind overlay, retrying once")
	if err := action.native(ctx, target); err != nil {
		if err := x.recover(ctx, action, target, err); err != nil {
			log.Warn().Err(err).Str("action", action.Name()).Msg("retry after failed verification did not go through")
			return false, nil
		}
	}
	if x.settle(ctx, verify) {
		return true, nil
	}

	log.Warn().Str("action", action.Name()).Msg("verification failed after retry")
	return false, ctx.Err()
}

// recover walks the retry ladder for a failed native action.
func (x *Executor) recover(ctx context.Context, action Action, target ui.Element, cause error) error {
	log := logger.FromContext(ctx)
	kind := ui.KindOf(cause)

	fail := func(kind ui.ErrorKind, attempts []string, err error) error {
		return &InteractionError{Action: action.Name(), Kind: kind, Attempts: attempts, Err: err}
	}

	switch kind {
	case ui.KindStaleReference:
		return fail(kind, []string{"native"}, cause)
	case ui.KindOverlayBlocked, ui.KindNotInteractable:
	default:
		return fail(kind, []string{"native"}, cause)
	}

	attempts := []string{"native"}
	log.Debug().Err(cause).Str("action", action.Name()).Msg("native action intercepted, waiting for overlays")

	if _, err := x.WaitForOverlays(ctx); err != nil && ctx.Err() != nil {
		return fail(ui.KindTimeout, attempts, ctx.Err())
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"retry", func() error { return action.native(ctx, target) }},
		{"programmatic", func() error { return action.programmatic(ctx, target) }},
		{"scroll", func() error {
			if err := target.ScrollIntoView(ctx); err != nil {
				return err
			}
			return action.native(ctx, target)
		}},
	}

	last := cause
	for _, step := range steps {
		attempts = append(attempts, step.name)
		err := step.run()
		if err == nil {
			log.Debug().Str("action", action.Name()).Str("step", step.name).Msg("action recovered")
			return nil
		}
		last = err
		if ui.KindOf(err) == ui.KindStaleReference {
			return fail(ui.KindStaleReference, attempts, err)
		}
		if ctx.Err() != nil {
			return fail(ui.KindTimeout, attempts, ctx.Err())
		}
	}

	return fail(ui.KindOf(last), attempts, last)
}

// settle polls verify for up to the settle window.
func (x *Executor) settle(ctx context.Context, verify ui.Condition) bool {
	return ui.Poll(ctx, x.opts.SettleWindow, x.opts.PollInterval, ui.Tolerant(verify)) == nil
}

// WaitForOverlays waits until every configured overlay indicator is hidden.
// found reports whether any overlay was visible at all. err is ErrWaitTimeout
// when the shared budget ran out with an overlay still showing.
func (x *Executor) WaitForOverlays(ctx context.Context) (found bool, err error) {
	log := logger.FromContext(ctx)
	deadline := time.Now().Add(x.opts.OverlayTimeout)

	for _, sel := range x.opts.Overlays {
		visible, err := ui.AnyVisible(x.page, sel)(ctx)
		if err != nil || !visible {
			continue
		}
		found = true

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		err = ui.Poll(ctx, remaining, x.opts.PollInterval, ui.Tolerant(ui.NoneVisible(x.page, sel)))
		if errors.Is(err, ui.ErrWaitTimeout) {
			log.Warn().Str("overlay", sel.String()).Dur("timeout", x.opts.OverlayTimeout).Msg("overlay still visible")
			return found, err
		}
		if err != nil {
			return found, err
		}
	}
	return found, nil
}
