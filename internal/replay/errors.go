package replay

import (
	"errors"
	"fmt"
)

var (
	// ErrReplay is matched by every ReplayError.
	ErrReplay = errors.New("replay failed")
	// ErrUnmappedGateway marks records whose gateway has no console display name.
	ErrUnmappedGateway = errors.New("gateway has no display mapping")
)

// ReplayError reports the step at which a record's form-fill sequence stopped.
// The record is abandoned; the batch goes on.
type ReplayError struct {
	OrderIDTag string
	Step       string
	Err        error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s: %s: %v", e.OrderIDTag, e.Step, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

func (e *ReplayError) Is(target error) bool { return target == ErrReplay }
