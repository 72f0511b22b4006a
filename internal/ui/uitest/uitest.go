// Package uitest provides a scriptable in-memory implementation of the ui
// contract. Queries are answered from registered selector expressions, so
// tests describe a page as "this selector currently yields these elements".
package uitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Journal records actions across every element of a page, in order.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *Journal) add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of everything recorded so far.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

type resolver func() []ui.Element

type queryTable struct {
	mu      sync.Mutex
	queries map[string]resolver
	counts  map[string]int
}

func newQueryTable() queryTable {
	return queryTable{queries: map[string]resolver{}, counts: map[string]int{}}
}

func (q *queryTable) set(sel ui.Selector, fn resolver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries[sel.String()] = fn
}

func (q *queryTable) find(sel ui.Selector) []ui.Element {
	q.mu.Lock()
	fn := q.queries[sel.String()]
	q.counts[sel.String()]++
	q.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (q *queryTable) count(sel ui.Selector) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[sel.String()]
}

// Page is a fake browser tab.
type Page struct {
	queryTable
	Journal *Journal

	mu          sync.Mutex
	scrollCalls int
	live        int
	releases    int
}

// NewPage returns an empty page with its own journal.
func NewPage() *Page {
	return &Page{queryTable: newQueryTable(), Journal: &Journal{}}
}

// Set makes sel resolve to a fixed element list.
func (p *Page) Set(sel ui.Selector, els ...*Element) {
	list := toUI(els)
	p.set(sel, func() []ui.Element { return list })
}

// SetFunc makes sel resolve through fn on every query.
func (p *Page) SetFunc(sel ui.Selector, fn func() []ui.Element) {
	p.set(sel, fn)
}

// Queries returns how many times sel was queried on the page.
func (p *Page) Queries(sel ui.Selector) int {
	return p.count(sel)
}

// ScrollCalls returns how many times ScrollToTop ran.
func (p *Page) ScrollCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollCalls
}

// NewElement creates a visible, enabled element bound to the page journal.
func (p *Page) NewElement(name string) *Element {
	el := NewElement(name)
	el.journal = p.Journal
	return el
}

func (p *Page) FindAll(ctx context.Context, sel ui.Selector) ([]ui.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els := p.find(sel)
	p.mu.Lock()
	p.live += len(els)
	p.mu.Unlock()
	return els, nil
}

// ReleaseHandles forgets the handles handed out so far.
func (p *Page) ReleaseHandles(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = 0
	p.releases++
	return nil
}

// LiveHandles returns how many page-level handles were found since the last release.
func (p *Page) LiveHandles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Releases returns how many times ReleaseHandles ran.
func (p *Page) Releases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

func (p *Page) ScrollToTop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollCalls++
	return nil
}

// Element is a fake node. Zero value is not usable; build one with NewElement.
type Element struct {
	queryTable
	Name    string
	journal *Journal

	mu       sync.Mutex
	text     string
	value    string
	attrs    map[string]string
	visible  bool
	enabled  bool
	detached bool
	actions  []string

	clickErrs []error
	jsErrs    []error
	typeErrs  []error

	// OnClick runs after every successful native or programmatic click.
	OnClick func()
	// OnPress runs after every successful key press.
	OnPress func(ui.Key)
}

// NewElement creates a visible, enabled element with no journal.
func NewElement(name string) *Element {
	return &Element{
		queryTable: newQueryTable(),
		Name:       name,
		attrs:      map[string]string{},
		visible:    true,
		enabled:    true,
	}
}

// WithText sets the rendered text.
func (e *Element) WithText(text string) *Element {
	e.SetText(text)
	return e
}

// WithAttr sets an attribute.
func (e *Element) WithAttr(name, value string) *Element {
	e.SetAttr(name, value)
	return e
}

// WithChild makes sel, queried from this element, resolve to els.
func (e *Element) WithChild(sel ui.Selector, els ...*Element) *Element {
	list := toUI(els)
	e.set(sel, func() []ui.Element { return list })
	return e
}

// WithChildFunc makes sel, queried from this element, resolve through fn.
func (e *Element) WithChildFunc(sel ui.Selector, fn func() []ui.Element) *Element {
	e.set(sel, fn)
	return e
}

func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

func (e *Element) SetAttr(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
}

func (e *Element) SetVisible(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = v
}

func (e *Element) SetEnabled(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = v
}

// Detach makes every later call fail with a stale-reference error.
func (e *Element) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
}

// FailClicks queues n native click failures of the given kind.
func (e *Element) FailClicks(kind ui.ErrorKind, n int) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < n; i++ {
		e.clickErrs = append(e.clickErrs, ui.NewError(kind, "click", fmt.Errorf("%s scripted", e.Name)))
	}
	return e
}

// FailProgrammaticClicks queues n programmatic click failures.
func (e *Element) FailProgrammaticClicks(kind ui.ErrorKind, n int) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < n; i++ {
		e.jsErrs = append(e.jsErrs, ui.NewError(kind, "click programmatic", fmt.Errorf("%s scripted", e.Name)))
	}
	return e
}

// FailTypes queues n native typing failures.
func (e *Element) FailTypes(kind ui.ErrorKind, n int) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < n; i++ {
		e.typeErrs = append(e.typeErrs, ui.NewError(kind, "type", fmt.Errorf("%s scripted", e.Name)))
	}
	return e
}

// Actions returns what was done to this element, e.g. "click", "type:abc".
func (e *Element) Actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.actions))
	copy(out, e.actions)
	return out
}

// Value returns the current input value.
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *Element) record(action string) {
	e.actions = append(e.actions, action)
	e.journal.add(e.Name + ":" + action)
}

func (e *Element) stale(op string) error {
	return ui.NewError(ui.KindStaleReference, op, fmt.Errorf("%s detached", e.Name))
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (e *Element) FindAll(ctx context.Context, sel ui.Selector) ([]ui.Element, error) {
	e.mu.Lock()
	detached := e.detached
	e.mu.Unlock()
	if detached {
		return nil, e.stale("find")
	}
	return e.find(sel), nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return e.stale("click")
	}
	if err := pop(&e.clickErrs); err != nil {
		e.record("click-failed")
		e.mu.Unlock()
		return err
	}
	e.record("click")
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) ClickProgrammatic(ctx context.Context) error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return e.stale("click programmatic")
	}
	if err := pop(&e.jsErrs); err != nil {
		e.record("jsclick-failed")
		e.mu.Unlock()
		return err
	}
	e.record("jsclick")
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return e.stale("scroll")
	}
	e.record("scroll")
	return nil
}

func (e *Element) Type(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return e.stale("type")
	}
	if err := pop(&e.typeErrs); err != nil {
		e.record("type-failed")
		return err
	}
	e.value = text
	e.record("type:" + text)
	return nil
}

func (e *Element) SetValue(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return e.stale("set value")
	}
	e.value = text
	e.record("set:" + text)
	return nil
}

func (e *Element) Press(ctx context.Context, key ui.Key) error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return e.stale("press")
	}
	e.record("press:" + string(key))
	hook := e.OnPress
	e.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return "", e.stale("text")
	}
	return e.text, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return "", false, e.stale("attribute")
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return false, e.stale("visible")
	}
	return e.visible, nil
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached {
		return false, e.stale("enabled")
	}
	return e.enabled, nil
}

func toUI(els []*Element) []ui.Element {
	out := make([]ui.Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}

var (
	_ ui.Page    = (*Page)(nil)
	_ ui.Element = (*Element)(nil)
)
