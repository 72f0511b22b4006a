package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Strategy is one way of finding a concept inside a scope.
// Find returns an empty slice when nothing matches.
type Strategy interface {
	Describe() string
	Find(ctx context.Context, scope ui.Scope) ([]ui.Element, error)
}

type selectorStrategy struct {
	sel ui.Selector
}

// Structural matches a raw CSS or XPath selector.
func Structural(sel ui.Selector) Strategy { return selectorStrategy{sel: sel} }

// CSS is Structural(ui.ByCSS(expr)).
func CSS(expr string) Strategy { return Structural(ui.ByCSS(expr)) }

// XPath is Structural(ui.ByXPath(expr)).
func XPath(expr string) Strategy { return Structural(ui.ByXPath(expr)) }

func (s selectorStrategy) Describe() string { return s.sel.String() }

func (s selectorStrategy) Find(ctx context.Context, scope ui.Scope) ([]ui.Element, error) {
	return scope.FindAll(ctx, s.sel)
}

type roleStrategy struct {
	role, name string
	sel        ui.Selector
}

// Role matches elements by ARIA role and, when name is set, by accessible
// name (aria-label or trimmed text).
func Role(role, name string) Strategy {
	expr := fmt.Sprintf(".//*[@role=%s]", xpathLiteral(role))
	if name != "" {
		lit := xpathLiteral(name)
		expr = fmt.Sprintf(".//*[@role=%s and (@aria-label=%s or normalize-space(.)=%s)]",
			xpathLiteral(role), lit, lit)
	}
	return roleStrategy{role: role, name: name, sel: ui.ByXPath(expr)}
}

func (s roleStrategy) Describe() string {
	if s.name == "" {
		return "role:" + s.role
	}
	return fmt.Sprintf("role:%s[%s]", s.role, s.name)
}

func (s roleStrategy) Find(ctx context.Context, scope ui.Scope) ([]ui.Element, error) {
	return scope.FindAll(ctx, s.sel)
}

type textStrategy struct {
	tag, text string
	sel       ui.Selector
}

// Text matches elements of tag (any tag when empty) whose trimmed text is text.
func Text(tag, text string) Strategy {
	if tag == "" {
		tag = "*"
	}
	expr := fmt.Sprintf(".//%s[normalize-space(.)=%s]", tag, xpathLiteral(text))
	return textStrategy{tag: tag, text: text, sel: ui.ByXPath(expr)}
}

func (s textStrategy) Describe() string { return fmt.Sprintf("text:%s[%s]", s.tag, s.text) }

func (s textStrategy) Find(ctx context.Context, scope ui.Scope) ([]ui.Element, error) {
	return scope.FindAll(ctx, s.sel)
}

type visibleStrategy struct {
	inner Strategy
}

// Visible keeps only the elements of inner that are currently displayed.
func Visible(inner Strategy) Strategy { return visibleStrategy{inner: inner} }

func (s visibleStrategy) Describe() string { return "visible " + s.inner.Describe() }

func (s visibleStrategy) Find(ctx context.Context, scope ui.Scope) ([]ui.Element, error) {
	els, err := s.inner.Find(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := els[:0:0]
	for _, el := range els {
		if ok, err := el.Visible(ctx); err == nil && ok {
			out = append(out, el)
		}
	}
	return out, nil
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
