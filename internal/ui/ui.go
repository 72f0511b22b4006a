// Package ui defines the contract between the reconciliation core and whatever
// drives the back-office console. The chromedp adapter implements it in
// production and package uitest implements it for tests.
package ui

import "context"

// SelectorKind tells the driving layer how to interpret a selector expression.
type SelectorKind int

const (
	CSS SelectorKind = iota
	XPath
)

func (k SelectorKind) String() string {
	if k == XPath {
		return "xpath"
	}
	return "css"
}

// Selector is a raw query understood by the driving layer.
type Selector struct {
	Kind SelectorKind
	Expr string
}

// ByCSS builds a CSS selector.
func ByCSS(expr string) Selector { return Selector{Kind: CSS, Expr: expr} }

// ByXPath builds an XPath selector.
func ByXPath(expr string) Selector { return Selector{Kind: XPath, Expr: expr} }

func (s Selector) String() string {
	return s.Kind.String() + ":" + s.Expr
}

// Key is a named keyboard key.
type Key string

const (
	KeyEnter Key = "Enter"
)

// Scope is anything elements can be queried from: a page or an element.
// FindAll returns an empty slice, not an error, when nothing matches.
type Scope interface {
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
}

// Element is a live handle to a rendered node.
// Methods return *DriverError so callers can switch on Kind.
type Element interface {
	Scope

	// Click performs a native pointer click at the element's center.
	Click(ctx context.Context) error
	// ClickProgrammatic dispatches a DOM-level click, bypassing hit-testing.
	ClickProgrammatic(ctx context.Context) error
	// ScrollIntoView scrolls the element to the middle of the viewport.
	ScrollIntoView(ctx context.Context) error

	// Type clears the element and sends text as native keystrokes.
	Type(ctx context.Context, text string) error
	// SetValue injects text as the element value and fires input and change events.
	SetValue(ctx context.Context, text string) error
	// Press sends a single key to the element.
	Press(ctx context.Context, key Key) error

	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Visible(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
}

// Page is the single browser tab owned by the process.
type Page interface {
	Scope

	// ScrollToTop scrolls the document back to the origin.
	ScrollToTop(ctx context.Context) error
}

// HandleReleaser is implemented by pages whose element handles pin
// driver-side objects. ReleaseHandles frees every handle found so far;
// using one afterwards fails with KindStaleReference.
type HandleReleaser interface {
	ReleaseHandles(ctx context.Context) error
}
