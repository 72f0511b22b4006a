package cdp

import (
	"context"
	"errors"
	"strings"

	"github.com/chromedp/cdproto"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

var errStale = errors.New("node is no longer attached to the document")

// staleMessages are the protocol error texts for a released or detached object.
var staleMessages = []string{
	"Could not find object with given id",
	"No node with given id found",
	"Cannot find context with specified id",
}

// classify converts a protocol or context failure into a DriverError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *ui.DriverError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, errStale) {
		return ui.NewError(ui.KindStaleReference, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ui.NewError(ui.KindTimeout, op, err)
	}

	var pe *cdproto.Error
	if errors.As(err, &pe) {
		for _, m := range staleMessages {
			if strings.Contains(pe.Message, m) {
				return ui.NewError(ui.KindStaleReference, op, err)
			}
		}
	}
	return ui.NewError(ui.KindUnknown, op, err)
}
