package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/console-reconciler/internal/ui"
	"github.com/dvloznov/console-reconciler/internal/ui/uitest"
)

var overlaySel = ui.ByCSS(".app-preloader")

func newTestExecutor(page *uitest.Page) *Executor {
	return New(page, Options{
		Overlays:       []ui.Selector{overlaySel},
		OverlayTimeout: 200 * time.Millisecond,
		SettleWindow:   20 * time.Millisecond,
		PollInterval:   2 * time.Millisecond,
	})
}

func TestPerform_ClickLadder(t *testing.T) {
	tests := []struct {
		name        string
		clickFails  int
		jsFails     int
		kind        ui.ErrorKind
		wantErr     error
		wantActions []string
	}{
		{
			name:        "native click succeeds",
			wantActions: []string{"click"},
		},
		{
			name:        "overlay then retry",
			clickFails:  1,
			kind:        ui.KindOverlayBlocked,
			wantActions: []string{"click-failed", "click"},
		},
		{
			name:        "falls back to programmatic click",
			clickFails:  2,
			kind:        ui.KindOverlayBlocked,
			wantActions: []string{"click-failed", "click-failed", "jsclick"},
		},
		{
			name:        "scrolls into view as last resort",
			clickFails:  2,
			jsFails:     1,
			kind:        ui.KindOverlayBlocked,
			wantActions: []string{"click-failed", "click-failed", "jsclick-failed", "scroll", "click"},
		},
		{
			name:        "not interactable walks the same ladder",
			clickFails:  1,
			kind:        ui.KindNotInteractable,
			wantActions: []string{"click-failed", "click"},
		},
		{
			name:        "every strategy exhausted",
			clickFails:  3,
			jsFails:     1,
			kind:        ui.KindOverlayBlocked,
			wantErr:     ErrInteractionBlocked,
			wantActions: []string{"click-failed", "click-failed", "jsclick-failed", "scroll", "click-failed"},
		},
		{
			name:        "unknown failure is not retried",
			clickFails:  1,
			kind:        ui.KindUnknown,
			wantErr:     ErrInteractionBlocked,
			wantActions: []string{"click-failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := uitest.NewPage()
			btn := page.NewElement("btn").
				FailClicks(tt.kind, tt.clickFails).
				FailProgrammaticClicks(tt.kind, tt.jsFails)

			ok, err := newTestExecutor(page).Click(context.Background(), btn, nil)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, IsStale(err))
				assert.False(t, ok)
			} else {
				require.NoError(t, err)
				assert.True(t, ok)
			}
			assert.Equal(t, tt.wantActions, btn.Actions())
		})
	}
}

func TestPerform_WaitsForOverlayBeforeRetry(t *testing.T) {
	page := uitest.NewPage()
	overlay := page.NewElement("overlay")
	page.Set(overlaySel, overlay)

	btn := page.NewElement("btn").FailClicks(ui.KindOverlayBlocked, 1)
	time.AfterFunc(30*time.Millisecond, func() { overlay.SetVisible(false) })

	ok, err := newTestExecutor(page).Click(context.Background(), btn, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"click-failed", "click"}, btn.Actions())
	assert.Greater(t, page.Queries(overlaySel), 1)
}

func TestPerform_StaleTarget(t *testing.T) {
	page := uitest.NewPage()
	btn := page.NewElement("btn")
	btn.Detach()

	ok, err := newTestExecutor(page).Click(context.Background(), btn, nil)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, IsStale(err))
	assert.False(t, errors.Is(err, ErrInteractionBlocked))

	var ie *InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ui.KindStaleReference, ie.Kind)
}

func TestPerform_StaleDuringLadder(t *testing.T) {
	page := uitest.NewPage()
	btn := page.NewElement("btn").FailClicks(ui.KindOverlayBlocked, 1)
	x := newTestExecutor(page)

	// Detach as soon as the overlay wait starts so the retry hits a stale node.
	page.SetFunc(overlaySel, func() []ui.Element {
		btn.Detach()
		return nil
	})

	_, err := x.Click(context.Background(), btn, nil)
	assert.True(t, IsStale(err))
}

func TestPerform_Verify(t *testing.T) {
	t.Run("verify passes", func(t *testing.T) {
		page := uitest.NewPage()
		modal := page.NewElement("modal")
		modal.SetVisible(false)
		btn := page.NewElement("open")
		btn.OnClick = func() { modal.SetVisible(true) }

		ok, err := newTestExecutor(page).Click(context.Background(), btn, modal.Visible)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("verify fails without overlay is soft", func(t *testing.T) {
		page := uitest.NewPage()
		btn := page.NewElement("open")

		ok, err := newTestExecutor(page).Click(context.Background(), btn, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"click"}, btn.Actions())
	})

	t.Run("verify fails behind overlay and recovers on retry", func(t *testing.T) {
		page := uitest.NewPage()
		overlay := page.NewElement("overlay")
		page.Set(overlaySel, overlay)
		time.AfterFunc(100*time.Millisecond, func() { overlay.SetVisible(false) })

		clicks := 0
		btn := page.NewElement("open")
		btn.OnClick = func() { clicks++ }

		ok, err := newTestExecutor(page).Click(context.Background(), btn, func(ctx context.Context) (bool, error) {
			return clicks >= 2, nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"click", "click"}, btn.Actions())
	})

	t.Run("exactly one extra cycle", func(t *testing.T) {
		page := uitest.NewPage()
		overlay := page.NewElement("overlay")
		page.Set(overlaySel, overlay)
		time.AfterFunc(60*time.Millisecond, func() { overlay.SetVisible(false) })

		btn := page.NewElement("open")
		ok, err := newTestExecutor(page).Click(context.Background(), btn, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"click", "click"}, btn.Actions())
	})
}

func TestType_FallsBackToValueInjection(t *testing.T) {
	page := uitest.NewPage()
	field := page.NewElement("amount").FailTypes(ui.KindOverlayBlocked, 2)

	ok, err := newTestExecutor(page).Type(context.Background(), field, "3739.20")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3739.20", field.Value())
	assert.Equal(t, []string{"type-failed", "type-failed", "set:3739.20"}, field.Actions())
}

func TestWaitForOverlays(t *testing.T) {
	t.Run("none visible", func(t *testing.T) {
		page := uitest.NewPage()
		found, err := newTestExecutor(page).WaitForOverlays(context.Background())
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("stuck overlay times out", func(t *testing.T) {
		page := uitest.NewPage()
		page.Set(overlaySel, page.NewElement("overlay"))
		found, err := newTestExecutor(page).WaitForOverlays(context.Background())
		assert.True(t, found)
		assert.ErrorIs(t, err, ui.ErrWaitTimeout)
	})
}
