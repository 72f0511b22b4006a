package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Element is a handle to a DOM node held as a runtime remote object.
type Element struct {
	page *Page
	id   runtime.RemoteObjectID
	desc string
}

// guarded is the envelope every element call returns, so a detached node
// is reported as stale instead of acting on a ghost.
type guarded struct {
	Stale bool            `json:"stale"`
	V     json.RawMessage `json:"v"`
}

// eval runs body as a method of the element and decodes its return value.
func (e *Element) eval(ctx context.Context, op, body string, out any) error {
	fn := fmt.Sprintf(`function() {
	if (!this.isConnected) return {stale: true};
	return {v: (function() { %s }).call(this)};
}`, body)

	var res guarded
	err := e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callValue(ctx, e.id, fn, &res)
	}))
	if err != nil {
		return classify(op, err)
	}
	if res.Stale {
		return ui.NewError(ui.KindStaleReference, op, errStale)
	}
	if out != nil && len(res.V) > 0 {
		if err := json.Unmarshal(res.V, out); err != nil {
			return ui.NewError(ui.KindUnknown, op, err)
		}
	}
	return nil
}

func (e *Element) FindAll(ctx context.Context, sel ui.Selector) ([]ui.Element, error) {
	var connected bool
	if err := e.eval(ctx, "find", "return true;", &connected); err != nil {
		return nil, err
	}

	var out []ui.Element
	err := e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		out, err = e.page.query(ctx, e.id, sel)
		return err
	}))
	if err != nil {
		return nil, classify("find "+sel.String(), err)
	}
	return out, nil
}

const hitTestJS = `
	const r = this.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return {state: "hidden"};
	const x = r.left + r.width / 2, y = r.top + r.height / 2;
	if (x < 0 || y < 0 || x > window.innerWidth || y > window.innerHeight) return {state: "offscreen"};
	const hit = document.elementFromPoint(x, y);
	if (hit && hit !== this && !this.contains(hit)) {
		return {state: "blocked", by: hit.tagName + (hit.className ? "." + String(hit.className).split(" ").join(".") : "")};
	}
	return {state: "ok", x: x, y: y};`

type hitResult struct {
	State string  `json:"state"`
	By    string  `json:"by"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// hitKind maps a hit-test state to the error kind a native click would raise.
func hitKind(state string) (ui.ErrorKind, bool) {
	switch state {
	case "ok":
		return ui.KindUnknown, true
	case "blocked":
		return ui.KindOverlayBlocked, false
	case "hidden", "offscreen":
		return ui.KindNotInteractable, false
	}
	return ui.KindUnknown, false
}

func (e *Element) Click(ctx context.Context) error {
	var hit hitResult
	if err := e.eval(ctx, "click", hitTestJS, &hit); err != nil {
		return err
	}
	if kind, ok := hitKind(hit.State); !ok {
		return ui.NewError(kind, "click", fmt.Errorf("%s is %s %s", e.desc, hit.State, hit.By))
	}
	if err := e.page.run(ctx, chromedp.MouseClickXY(hit.X, hit.Y)); err != nil {
		return classify("click", err)
	}
	return nil
}

func (e *Element) ClickProgrammatic(ctx context.Context) error {
	return e.eval(ctx, "click programmatic", "this.click(); return true;", nil)
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.eval(ctx, "scroll", "this.scrollIntoView({block: 'center', inline: 'center'}); return true;", nil)
}

// Type clears the field and sends text as key events to the focused element.
func (e *Element) Type(ctx context.Context, text string) error {
	var hit hitResult
	if err := e.eval(ctx, "type", hitTestJS, &hit); err != nil {
		return err
	}
	if kind, ok := hitKind(hit.State); !ok && kind == ui.KindNotInteractable {
		return ui.NewError(kind, "type", fmt.Errorf("%s is %s", e.desc, hit.State))
	}

	clear := `this.focus();
	if ("value" in this) {
		this.value = "";
		this.dispatchEvent(new Event("input", {bubbles: true}));
	}
	return document.activeElement === this;`
	var focused bool
	if err := e.eval(ctx, "type", clear, &focused); err != nil {
		return err
	}
	if !focused {
		return ui.NewError(ui.KindNotInteractable, "type", fmt.Errorf("%s did not take focus", e.desc))
	}
	if err := e.page.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return classify("type", err)
	}
	return nil
}

func (e *Element) SetValue(ctx context.Context, text string) error {
	body := fmt.Sprintf(`const v = %s;
	const proto = this instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
		: this instanceof HTMLInputElement ? HTMLInputElement.prototype : null;
	const d = proto && Object.getOwnPropertyDescriptor(proto, "value");
	if (d && d.set) d.set.call(this, v); else this.value = v;
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
	return true;`, jsString(text))
	return e.eval(ctx, "set value", body, nil)
}

func (e *Element) Press(ctx context.Context, key ui.Key) error {
	var seq string
	switch key {
	case ui.KeyEnter:
		seq = kb.Enter
	default:
		return ui.NewError(ui.KindUnknown, "press", fmt.Errorf("unsupported key %q", key))
	}
	if err := e.eval(ctx, "press", "this.focus(); return true;", nil); err != nil {
		return err
	}
	if err := e.page.run(ctx, chromedp.KeyEvent(seq)); err != nil {
		return classify("press", err)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.eval(ctx, "text", `return (this.innerText || this.textContent || "").trim();`, &s)
	return s, err
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res struct {
		Has   bool   `json:"has"`
		Value string `json:"value"`
	}
	body := fmt.Sprintf(`const n = %s;
	return {has: this.hasAttribute(n), value: this.getAttribute(n) || ""};`, jsString(name))
	if err := e.eval(ctx, "attribute", body, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Has, nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	var v bool
	err := e.eval(ctx, "visible", `const s = window.getComputedStyle(this);
	const r = this.getBoundingClientRect();
	return s.display !== "none" && s.visibility !== "hidden" && s.opacity !== "0" && r.width > 0 && r.height > 0;`, &v)
	return v, err
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	var v bool
	err := e.eval(ctx, "enabled", `return !this.disabled && this.getAttribute("aria-disabled") !== "true";`, &v)
	return v, err
}

var _ ui.Element = (*Element)(nil)
