package cdp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/console-reconciler/internal/ui"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ui.ErrorKind
	}{
		{"released object", &cdproto.Error{Code: -32000, Message: "Could not find object with given id"}, ui.KindStaleReference},
		{"detached node", fmt.Errorf("wrapped: %w", &cdproto.Error{Message: "No node with given id found"}), ui.KindStaleReference},
		{"stale sentinel", errStale, ui.KindStaleReference},
		{"deadline", context.DeadlineExceeded, ui.KindTimeout},
		{"other protocol error", &cdproto.Error{Message: "Invalid parameters"}, ui.KindUnknown},
		{"already classified", ui.NewError(ui.KindOverlayBlocked, "click", errors.New("x")), ui.KindOverlayBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ui.KindOf(classify("op", tt.err)))
		})
	}
	assert.NoError(t, classify("op", nil))
}

func TestHitKind(t *testing.T) {
	tests := []struct {
		state string
		kind  ui.ErrorKind
		ok    bool
	}{
		{"ok", ui.KindUnknown, true},
		{"blocked", ui.KindOverlayBlocked, false},
		{"hidden", ui.KindNotInteractable, false},
		{"offscreen", ui.KindNotInteractable, false},
		{"weird", ui.KindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			kind, ok := hitKind(tt.state)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestQueryFunction(t *testing.T) {
	css := queryFunction(ui.ByCSS(`div[data-value="Bank Charge"]`))
	assert.Contains(t, css, `querySelectorAll("div[data-value=\"Bank Charge\"]")`)

	xp := queryFunction(ui.ByXPath(`//button[contains(text(), 'Add')]`))
	assert.Contains(t, xp, `document.evaluate("//button[contains(text(), 'Add')]", this`)
	assert.Contains(t, xp, "ORDERED_NODE_SNAPSHOT_TYPE")
}

func TestJSString(t *testing.T) {
	assert.Equal(t, `"Interest Charge Depo 29/07"`, jsString("Interest Charge Depo 29/07"))
	assert.Equal(t, `"a\"b\\c\n"`, jsString("a\"b\\c\n"))
}

func TestPickTarget(t *testing.T) {
	targets := []*target.Info{
		{TargetID: "1", Type: "service_worker", URL: "https://console.example/sw.js"},
		{TargetID: "2", Type: "page", URL: "https://other.example/"},
		{TargetID: "3", Type: "page", URL: "https://console.example/transactions"},
	}
	got := pickTarget(targets, "https://console.example")
	if assert.NotNil(t, got) {
		assert.Equal(t, target.ID("3"), got.TargetID)
	}
	assert.Nil(t, pickTarget(targets, "https://missing.example"))
}

func TestHandleGroupRotation(t *testing.T) {
	p := &Page{}

	first := p.handleGroup()
	assert.Equal(t, first, p.handleGroup())

	released := p.rotateGroup()
	assert.Equal(t, first, released)
	assert.NotEqual(t, first, p.handleGroup())
	assert.Equal(t, groupName(1), p.handleGroup())
}
