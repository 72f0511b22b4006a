package ui

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by Poll when the condition never held.
var ErrWaitTimeout = errors.New("condition not met before timeout")

// DefaultPollInterval is used when a caller passes a non-positive interval.
const DefaultPollInterval = 100 * time.Millisecond

// Condition is a UI state predicate. A non-nil error aborts the wait.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond until it returns true, the timeout expires or ctx ends.
// cond is always evaluated at least once, even with a zero timeout.
func Poll(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrWaitTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tolerant wraps cond so that driving-layer errors count as "not yet".
// Context cancellation still aborts.
func Tolerant(cond Condition) Condition {
	return func(ctx context.Context) (bool, error) {
		ok, err := cond(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		return ok, nil
	}
}

// AnyVisible reports whether at least one element matched by sel is visible.
func AnyVisible(scope Scope, sel Selector) Condition {
	return func(ctx context.Context) (bool, error) {
		els, err := scope.FindAll(ctx, sel)
		if err != nil {
			return false, err
		}
		for _, el := range els {
			if v, err := el.Visible(ctx); err == nil && v {
				return true, nil
			}
		}
		return false, nil
	}
}

// NoneVisible reports whether every element matched by sel is hidden or absent.
func NoneVisible(scope Scope, sel Selector) Condition {
	return func(ctx context.Context) (bool, error) {
		ok, err := AnyVisible(scope, sel)(ctx)
		return !ok, err
	}
}
