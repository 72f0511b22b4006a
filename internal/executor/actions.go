package executor

import (
	"context"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Action is one user-level interaction with a single element.
// The native form is tried first; the programmatic form is the DOM-level
// fallback used only after native interaction failed.
type Action interface {
	Name() string
	native(ctx context.Context, el ui.Element) error
	programmatic(ctx context.Context, el ui.Element) error
}

type clickAction struct{}

// Click returns a click action. The fallback dispatches a DOM click.
func Click() Action { return clickAction{} }

func (clickAction) Name() string { return "click" }

func (clickAction) native(ctx context.Context, el ui.Element) error {
	return el.Click(ctx)
}

func (clickAction) programmatic(ctx context.Context, el ui.Element) error {
	return el.ClickProgrammatic(ctx)
}

type typeAction struct {
	text string
}

// Type returns a typing action. The fallback injects the value and fires
// input and change events.
func Type(text string) Action { return typeAction{text: text} }

func (typeAction) Name() string { return "type" }

func (a typeAction) native(ctx context.Context, el ui.Element) error {
	return el.Type(ctx, a.text)
}

func (a typeAction) programmatic(ctx context.Context, el ui.Element) error {
	return el.SetValue(ctx, a.text)
}

type pressAction struct {
	key ui.Key
}

// Press returns a key press action. It has no DOM-level equivalent, so the
// fallback repeats the key press once the element is reachable.
func Press(key ui.Key) Action { return pressAction{key: key} }

func (a pressAction) Name() string { return "press " + string(a.key) }

func (a pressAction) native(ctx context.Context, el ui.Element) error {
	return el.Press(ctx, a.key)
}

func (a pressAction) programmatic(ctx context.Context, el ui.Element) error {
	return el.Press(ctx, a.key)
}
