package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

var (
	// ErrInteractionBlocked means every recovery strategy was exhausted.
	ErrInteractionBlocked = errors.New("interaction blocked")
	// ErrStaleReference means the target left the document; re-resolve it.
	ErrStaleReference = errors.New("stale element reference")
)

// InteractionError describes a failed Perform call.
type InteractionError struct {
	Action   string
	Kind     ui.ErrorKind
	Attempts []string
	Err      error
}

func (e *InteractionError) Error() string {
	msg := fmt.Sprintf("%s failed (%s)", e.Action, e.Kind)
	if len(e.Attempts) > 0 {
		msg += " after " + strings.Join(e.Attempts, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InteractionError) Unwrap() error { return e.Err }

// Is lets callers use errors.Is with ErrStaleReference or ErrInteractionBlocked.
func (e *InteractionError) Is(target error) bool {
	switch target {
	case ErrStaleReference:
		return e.Kind == ui.KindStaleReference
	case ErrInteractionBlocked:
		return e.Kind != ui.KindStaleReference
	}
	return false
}

// IsStale reports whether err asks the caller to re-resolve its target.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleReference)
}
