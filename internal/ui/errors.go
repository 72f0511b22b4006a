package ui

import (
	"errors"
	"fmt"
)

// ErrorKind classifies driving-layer failures so recovery can switch on it.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindOverlayBlocked means another layer received the pointer event.
	KindOverlayBlocked
	// KindStaleReference means the handle no longer points into the document.
	KindStaleReference
	// KindNotInteractable means the element is hidden or has no box.
	KindNotInteractable
	// KindTimeout means a bounded wait expired.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindOverlayBlocked:
		return "overlay-blocked"
	case KindStaleReference:
		return "stale-reference"
	case KindNotInteractable:
		return "not-interactable"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// DriverError is the only error type the driving layer returns for element work.
type DriverError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *DriverError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// NewError builds a DriverError.
func NewError(kind ErrorKind, op string, err error) *DriverError {
	return &DriverError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, KindUnknown if none.
func KindOf(err error) ErrorKind {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrWaitTimeout) {
		return KindTimeout
	}
	return KindUnknown
}
