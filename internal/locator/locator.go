// Package locator resolves named page concepts to live elements by trying an
// ordered list of strategies. Vendor markup shifts under re-renders, so each
// concept carries several independent ways of being found.
package locator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Concept names a thing on the page, e.g. "form.amount".
type Concept string

var (
	// ErrNotFound means every strategy for a concept came up empty.
	ErrNotFound = errors.New("element not found")
	// ErrUnknownConcept means no strategies were registered for a concept.
	ErrUnknownConcept = errors.New("unknown concept")
)

// NotFoundError lists the strategies that were tried.
type NotFoundError struct {
	Concept Concept
	Tried   []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s (tried %s)", ErrNotFound, e.Concept, strings.Join(e.Tried, "; "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Rule is a strategy with its own wait budget. A zero timeout means a single attempt.
type Rule struct {
	Strategy Strategy
	Timeout  time.Duration
}

// Registry maps concepts to their ordered rules.
type Registry struct {
	rules map[Concept][]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[Concept][]Rule)}
}

// Register appends rules to concept, keeping priority order.
func (r *Registry) Register(concept Concept, rules ...Rule) *Registry {
	r.rules[concept] = append(r.rules[concept], rules...)
	return r
}

// Rules returns the rules registered for concept.
func (r *Registry) Rules(concept Concept) []Rule {
	return r.rules[concept]
}

// Concepts returns every registered concept, sorted.
func (r *Registry) Concepts() []Concept {
	out := make([]Concept, 0, len(r.rules))
	for c := range r.rules {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Budget is the worst-case time Resolve can spend on concept.
func (r *Registry) Budget(concept Concept) time.Duration {
	var total time.Duration
	for _, rule := range r.rules[concept] {
		total += rule.Timeout
	}
	return total
}

// Locator resolves concepts against a page.
type Locator struct {
	page     ui.Scope
	registry *Registry
	interval time.Duration
}

// New creates a Locator. interval is the poll period inside each rule's budget.
func New(page ui.Scope, registry *Registry, interval time.Duration) *Locator {
	if interval <= 0 {
		interval = ui.DefaultPollInterval
	}
	return &Locator{page: page, registry: registry, interval: interval}
}

// Registry exposes the locator's registry.
func (l *Locator) Registry() *Registry {
	return l.registry
}

// Resolve returns the first element of the first rule that matches.
// within narrows the search; nil means the whole page.
func (l *Locator) Resolve(ctx context.Context, concept Concept, within ui.Scope) (ui.Element, error) {
	els, err := l.ResolveAll(ctx, concept, within)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// ResolveAll returns every element matched by the first successful rule.
func (l *Locator) ResolveAll(ctx context.Context, concept Concept, within ui.Scope) ([]ui.Element, error) {
	return l.resolve(ctx, concept, within, true)
}

// Probe is ResolveAll without waiting: every rule is tried exactly once.
func (l *Locator) Probe(ctx context.Context, concept Concept, within ui.Scope) ([]ui.Element, error) {
	return l.resolve(ctx, concept, within, false)
}

func (l *Locator) resolve(ctx context.Context, concept Concept, within ui.Scope, wait bool) ([]ui.Element, error) {
	log := logger.FromContext(ctx)

	rules := l.registry.Rules(concept)
	if len(rules) == 0 {
		return nil, fmt.Errorf("Resolve: %w: %s", ErrUnknownConcept, concept)
	}

	scope := within
	if scope == nil {
		scope = l.page
	}

	tried := make([]string, 0, len(rules))
	for i, rule := range rules {
		tried = append(tried, rule.Strategy.Describe())

		var found []ui.Element
		attempt := func(ctx context.Context) (bool, error) {
			els, err := rule.Strategy.Find(ctx, scope)
			if err != nil {
				return false, err
			}
			found = els
			return len(els) > 0, nil
		}

		timeout := rule.Timeout
		if !wait {
			timeout = 0
		}
		err := ui.Poll(ctx, timeout, l.interval, attempt)
		if err == nil {
			if i > 0 {
				log.Debug().Str("concept", string(concept)).Str("strategy", rule.Strategy.Describe()).Msg("resolved by fallback strategy")
			}
			return found, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if ui.KindOf(err) == ui.KindStaleReference {
			// The scope itself went away; no later strategy can succeed.
			return nil, err
		}
	}

	return nil, &NotFoundError{Concept: concept, Tried: tried}
}
