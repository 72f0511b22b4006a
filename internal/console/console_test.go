package console

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/console-reconciler/internal/executor"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/ui"
	"github.com/dvloznov/console-reconciler/internal/ui/uitest"
)

func newTestConsole(page *uitest.Page, reg *locator.Registry) *Console {
	exec := executor.New(page, executor.Options{
		OverlayTimeout: 50 * time.Millisecond,
		SettleWindow:   10 * time.Millisecond,
		PollInterval:   time.Millisecond,
	})
	return New(page, locator.New(page, reg, time.Millisecond), exec)
}

func TestPerform_ReResolvesStaleTarget(t *testing.T) {
	page := uitest.NewPage()
	first := page.NewElement("old")
	first.Detach()
	second := page.NewElement("new")

	calls := 0
	page.SetFunc(ui.ByCSS("#save"), func() []ui.Element {
		calls++
		if calls == 1 {
			return []ui.Element{first}
		}
		return []ui.Element{second}
	})

	reg := locator.NewRegistry().Register("save", locator.Rule{Strategy: locator.CSS("#save")})
	ok, err := newTestConsole(page, reg).Click(context.Background(), "save", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"click"}, second.Actions())
}

func TestPerform_GivesUpAfterRetries(t *testing.T) {
	page := uitest.NewPage()
	el := page.NewElement("ghost")
	el.Detach()
	page.Set(ui.ByCSS("#save"), el)

	reg := locator.NewRegistry().Register("save", locator.Rule{Strategy: locator.CSS("#save")})
	_, err := newTestConsole(page, reg).Click(context.Background(), "save", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrStaleReference)
	assert.Equal(t, DefaultStaleRetries+1, page.Queries(ui.ByCSS("#save")))
}

func TestTypeOptional(t *testing.T) {
	page := uitest.NewPage()
	field := page.NewElement("remarks")
	page.Set(ui.ByCSS("#remarks"), field)

	reg := locator.NewRegistry().
		Register("remarks", locator.Rule{Strategy: locator.CSS("#remarks")}).
		Register("missing", locator.Rule{Strategy: locator.CSS("#missing")})
	c := newTestConsole(page, reg)

	filled, err := c.TypeOptional(context.Background(), "remarks", "hello")
	require.NoError(t, err)
	assert.True(t, filled)
	assert.Equal(t, "hello", field.Value())

	filled, err = c.TypeOptional(context.Background(), "missing", "hello")
	require.NoError(t, err)
	assert.False(t, filled)
}

func TestWaitVisibleAndGone(t *testing.T) {
	page := uitest.NewPage()
	modal := page.NewElement("modal")
	modal.SetVisible(false)
	page.Set(ui.ByCSS(".modal"), modal)

	reg := locator.NewRegistry().Register("modal", locator.Rule{Strategy: locator.CSS(".modal"), Timeout: time.Hour})
	c := newTestConsole(page, reg)

	err := c.WaitVisible(context.Background(), "modal", 10*time.Millisecond)
	assert.ErrorIs(t, err, ui.ErrWaitTimeout)

	time.AfterFunc(5*time.Millisecond, func() { modal.SetVisible(true) })
	require.NoError(t, c.WaitVisible(context.Background(), "modal", time.Second))

	time.AfterFunc(5*time.Millisecond, func() { modal.SetVisible(false) })
	require.NoError(t, c.WaitGone(context.Background(), "modal", time.Second))
}

func TestConsole_ReleasesHandlesAfterEachOperation(t *testing.T) {
	page := uitest.NewPage()
	page.Set(ui.ByCSS("#save"), page.NewElement("save"))
	page.Set(ui.ByCSS(".modal"), page.NewElement("modal"))
	reg := locator.NewRegistry().
		Register("save", locator.Rule{Strategy: locator.CSS("#save")}).
		Register("modal", locator.Rule{Strategy: locator.CSS(".modal")})
	con := newTestConsole(page, reg)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"click", func() error {
			_, err := con.Click(ctx, "save", con.Present("modal"))
			return err
		}},
		{"type", func() error { return con.Type(ctx, "save", "x") }},
		{"wait visible", func() error { return con.WaitVisible(ctx, "modal", 50*time.Millisecond) }},
		{"wait gone", func() error {
			err := con.WaitGone(ctx, "modal", 5*time.Millisecond)
			assert.ErrorIs(t, err, ui.ErrWaitTimeout)
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := page.Releases()
			require.NoError(t, tt.run())
			assert.Zero(t, page.LiveHandles())
			assert.Greater(t, page.Releases(), before)
		})
	}
}
