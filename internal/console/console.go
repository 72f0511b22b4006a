// Package console binds the locator and the executor into concept-level
// operations: resolve a concept, act on it, and re-resolve when the page
// re-rendered the target in between.
package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/console-reconciler/internal/executor"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

// DefaultStaleRetries is how many times a stale target is re-resolved.
const DefaultStaleRetries = 2

// Console is the concept-level view of the single browser tab.
type Console struct {
	page         ui.Page
	loc          *locator.Locator
	exec         *executor.Executor
	staleRetries int
	poll         time.Duration
}

// New creates a Console.
func New(page ui.Page, loc *locator.Locator, exec *executor.Executor) *Console {
	return &Console{
		page:         page,
		loc:          loc,
		exec:         exec,
		staleRetries: DefaultStaleRetries,
		poll:         exec.Options().PollInterval,
	}
}

// Page returns the underlying page.
func (c *Console) Page() ui.Page { return c.page }

// Locator returns the underlying locator.
func (c *Console) Locator() *locator.Locator { return c.loc }

// Executor returns the underlying executor.
func (c *Console) Executor() *executor.Executor { return c.exec }

// Resolve resolves concept on the whole page.
func (c *Console) Resolve(ctx context.Context, concept locator.Concept) (ui.Element, error) {
	return c.loc.Resolve(ctx, concept, nil)
}

// Perform resolves concept and runs action on it. A stale target is
// re-resolved up to the retry limit.
func (c *Console) Perform(ctx context.Context, concept locator.Concept, action executor.Action, verify ui.Condition) (bool, error) {
	log := logger.FromContext(ctx)
	defer c.Release(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.staleRetries; attempt++ {
		el, err := c.loc.Resolve(ctx, concept, nil)
		if err != nil {
			return false, err
		}
		ok, err := c.exec.Perform(ctx, action, el, verify)
		if err == nil {
			return ok, nil
		}
		if !executor.IsStale(err) {
			return false, fmt.Errorf("%s %s: %w", action.Name(), concept, err)
		}
		lastErr = err
		log.Debug().Str("concept", string(concept)).Int("attempt", attempt+1).Msg("target went stale, re-resolving")
	}
	return false, fmt.Errorf("%s %s: %w", action.Name(), concept, lastErr)
}

// Click clicks concept and returns the verify outcome.
func (c *Console) Click(ctx context.Context, concept locator.Concept, verify ui.Condition) (bool, error) {
	return c.Perform(ctx, concept, executor.Click(), verify)
}

// Type types text into concept.
func (c *Console) Type(ctx context.Context, concept locator.Concept, text string) error {
	_, err := c.Perform(ctx, concept, executor.Type(text), nil)
	return err
}

// Press sends key to concept.
func (c *Console) Press(ctx context.Context, concept locator.Concept, key ui.Key) error {
	_, err := c.Perform(ctx, concept, executor.Press(key), nil)
	return err
}

// TypeOptional types into concept if it can be found. A missing field is
// logged and reported as filled=false without an error.
func (c *Console) TypeOptional(ctx context.Context, concept locator.Concept, text string) (filled bool, err error) {
	err = c.Type(ctx, concept, text)
	if errors.Is(err, locator.ErrNotFound) {
		log := logger.FromContext(ctx)
		log.Warn().Str("concept", string(concept)).Msg("optional field not found, skipping")
		return false, nil
	}
	return err == nil, err
}

// Present reports, without waiting, whether concept is rendered and visible.
func (c *Console) Present(concept locator.Concept) ui.Condition {
	return func(ctx context.Context) (bool, error) {
		els, err := c.loc.Probe(ctx, concept, nil)
		if errors.Is(err, locator.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for _, el := range els {
			if ok, err := el.Visible(ctx); err == nil && ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// WaitVisible waits until concept is visible.
func (c *Console) WaitVisible(ctx context.Context, concept locator.Concept, timeout time.Duration) error {
	defer c.Release(ctx)
	if err := ui.Poll(ctx, timeout, c.poll, ui.Tolerant(c.Present(concept))); err != nil {
		return fmt.Errorf("waiting for %s: %w", concept, err)
	}
	return nil
}

// WaitGone waits until concept is absent or hidden.
func (c *Console) WaitGone(ctx context.Context, concept locator.Concept, timeout time.Duration) error {
	defer c.Release(ctx)
	gone := func(ctx context.Context) (bool, error) {
		ok, err := c.Present(concept)(ctx)
		return !ok, err
	}
	if err := ui.Poll(ctx, timeout, c.poll, ui.Tolerant(gone)); err != nil {
		return fmt.Errorf("waiting for %s to disappear: %w", concept, err)
	}
	return nil
}

// Release frees the element handles the page has handed out, when the page
// pins them. Handles held by the caller go stale.
func (c *Console) Release(ctx context.Context) {
	r, ok := c.page.(ui.HandleReleaser)
	if !ok {
		return
	}
	if err := r.ReleaseHandles(ctx); err != nil {
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Msg("could not release element handles")
	}
}

// WaitOverlays waits for the loading overlays to clear.
func (c *Console) WaitOverlays(ctx context.Context) error {
	_, err := c.exec.WaitForOverlays(ctx)
	return err
}
