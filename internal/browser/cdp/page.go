// Package cdp implements the ui driving contract on top of chromedp, attached
// to an already running browser over the DevTools protocol.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Page is the browser tab driven by the process.
type Page struct {
	// bctx is the chromedp context bound to the tab.
	bctx context.Context

	mu sync.Mutex
	// gen numbers the object group new element handles are created in.
	gen int
}

// Attach connects to the browser behind cdpURL. When consoleURL is set, an
// open tab whose URL starts with it is reused so an operator-established
// login survives; if none exists a new tab navigates there.
// The returned cancel func detaches without closing the browser.
func Attach(ctx context.Context, cdpURL, consoleURL string) (*Page, context.CancelFunc, error) {
	log := logger.FromContext(ctx)

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, cdpURL)
	bctx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := chromedp.Run(bctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("Attach: connecting to %s: %w", cdpURL, err)
	}
	if consoleURL == "" {
		return &Page{bctx: bctx}, cancel, nil
	}

	targets, err := chromedp.Targets(bctx)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("Attach: listing targets: %w", err)
	}
	if t := pickTarget(targets, consoleURL); t != nil {
		tctx, cancelTab := chromedp.NewContext(bctx, chromedp.WithTargetID(t.TargetID))
		if err := chromedp.Run(tctx); err != nil {
			cancelTab()
			cancel()
			return nil, nil, fmt.Errorf("Attach: attaching to tab: %w", err)
		}
		log.Info().Str("url", t.URL).Msg("attached to open console tab")
		return &Page{bctx: tctx}, func() { cancelTab(); cancel() }, nil
	}

	if err := chromedp.Run(bctx,
		chromedp.Navigate(consoleURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("Attach: opening %s: %w", consoleURL, err)
	}
	log.Info().Str("url", consoleURL).Msg("opened console in new tab")
	return &Page{bctx: bctx}, cancel, nil
}

func pickTarget(targets []*target.Info, prefix string) *target.Info {
	for _, t := range targets {
		if t.Type == "page" && strings.HasPrefix(t.URL, prefix) {
			return t
		}
	}
	return nil
}

// run executes fn on the tab. ctx bounds the call; bctx carries the session.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.bctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) FindAll(ctx context.Context, sel ui.Selector) ([]ui.Element, error) {
	var out []ui.Element
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		doc, exc, err := runtime.Evaluate("document").Do(ctx)
		if err := callErr(exc, err); err != nil {
			return err
		}
		defer release(ctx, doc.ObjectID)

		out, err = p.query(ctx, doc.ObjectID, sel)
		return err
	}))
	if err != nil {
		return nil, classify("find "+sel.String(), err)
	}
	return out, nil
}

// ReleaseHandles frees every element handle found so far. Later lookups
// land in a fresh object group.
func (p *Page) ReleaseHandles(ctx context.Context) error {
	group := p.rotateGroup()
	if err := p.run(ctx, runtime.ReleaseObjectGroup(group)); err != nil {
		return classify("release "+group, err)
	}
	return nil
}

func groupName(gen int) string {
	return fmt.Sprintf("console-reconciler-%d", gen)
}

func (p *Page) handleGroup() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return groupName(p.gen)
}

// rotateGroup starts a new handle group and returns the one it replaced.
func (p *Page) rotateGroup() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := groupName(p.gen)
	p.gen++
	return old
}

func (p *Page) ScrollToTop(ctx context.Context) error {
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, exc, err := runtime.Evaluate("window.scrollTo(0, 0)").Do(ctx)
		return callErr(exc, err)
	}))
	if err != nil {
		return classify("scroll to top", err)
	}
	return nil
}

// query runs sel against the object scope and returns one handle per match.
// Handles are created in the current object group and live until
// ReleaseHandles.
func (p *Page) query(ctx context.Context, scope runtime.RemoteObjectID, sel ui.Selector) ([]ui.Element, error) {
	group := p.handleGroup()
	arr, exc, err := runtime.CallFunctionOn(queryFunction(sel)).WithObjectID(scope).Do(ctx)
	if err := callErr(exc, err); err != nil {
		return nil, err
	}
	if arr.ObjectID == "" {
		return nil, errStale
	}
	defer release(ctx, arr.ObjectID)

	var n int
	if err := callValue(ctx, arr.ObjectID, "function() { return this.length; }", &n); err != nil {
		return nil, err
	}

	out := make([]ui.Element, 0, n)
	for i := 0; i < n; i++ {
		item, exc, err := runtime.CallFunctionOn(fmt.Sprintf("function() { return this[%d]; }", i)).
			WithObjectID(arr.ObjectID).
			WithObjectGroup(group).
			Do(ctx)
		if err := callErr(exc, err); err != nil {
			return nil, err
		}
		out = append(out, &Element{page: p, id: item.ObjectID, desc: sel.String()})
	}
	return out, nil
}

// queryFunction returns the JS function that collects matches under this.
func queryFunction(sel ui.Selector) string {
	if sel.Kind == ui.XPath {
		return fmt.Sprintf(`function() {
	const r = document.evaluate(%s, this, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
	return out;
}`, jsString(sel.Expr))
	}
	return fmt.Sprintf(`function() { return Array.from(this.querySelectorAll(%s)); }`, jsString(sel.Expr))
}

// callValue calls fn on object id and decodes its by-value result into out.
func callValue(ctx context.Context, id runtime.RemoteObjectID, fn string, out any) error {
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(id).
		WithReturnByValue(true).
		Do(ctx)
	if err := callErr(exc, err); err != nil {
		return err
	}
	if out == nil || len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(res.Value), out)
}

func callErr(exc *runtime.ExceptionDetails, err error) error {
	if err != nil {
		return err
	}
	if exc != nil {
		return errors.New(exc.Error())
	}
	return nil
}

func release(ctx context.Context, id runtime.RemoteObjectID) {
	if id == "" {
		return
	}
	_ = runtime.ReleaseObject(id).Do(ctx)
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

var (
	_ ui.Page           = (*Page)(nil)
	_ ui.HandleReleaser = (*Page)(nil)
)
