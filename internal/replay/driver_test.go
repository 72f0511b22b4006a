package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/console-reconciler/internal/console"
	"github.com/dvloznov/console-reconciler/internal/derive"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/executor"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/ui"
	"github.com/dvloznov/console-reconciler/internal/ui/uitest"
)

var allConcepts = []locator.Concept{
	ConceptGatewayControl, ConceptGatewayDropdown, ConceptGatewayInput, ConceptGatewayTable,
	ConceptFormOpen, ConceptFormModal, ConceptDirectionOut, ConceptCategoryControl,
	ConceptCategoryDropdown, ConceptCategoryOption, ConceptBankReference, ConceptRemarks,
	ConceptAmount, ConceptSubmit, ConceptFormInputs, ConceptPickerInput, ConceptPickerCalendar,
	ConceptPickerDays, ConceptPickerHour, ConceptPickerMinute, ConceptPickerMeridiem, ConceptPageBody,
}

func sel(c locator.Concept) ui.Selector { return ui.ByCSS("#" + string(c)) }

// fakeForm is a console page with a working bank transaction form.
type fakeForm struct {
	page *uitest.Page
	els  map[locator.Concept]*uitest.Element
	days []*uitest.Element
}

func newFakeForm() *fakeForm {
	f := &fakeForm{page: uitest.NewPage(), els: map[locator.Concept]*uitest.Element{}}
	for _, c := range allConcepts {
		if c == ConceptPickerDays {
			continue
		}
		el := f.page.NewElement(string(c))
		f.els[c] = el
		f.page.Set(sel(c), el)
	}

	for _, c := range []locator.Concept{ConceptGatewayDropdown, ConceptFormModal, ConceptCategoryDropdown, ConceptPickerCalendar} {
		f.els[c].SetVisible(false)
	}
	f.els[ConceptGatewayControl].OnClick = func() { f.els[ConceptGatewayDropdown].SetVisible(true) }
	f.els[ConceptFormOpen].OnClick = func() { f.els[ConceptFormModal].SetVisible(true) }
	f.els[ConceptCategoryControl].OnClick = func() { f.els[ConceptCategoryDropdown].SetVisible(true) }
	f.els[ConceptPickerInput].OnClick = func() { f.els[ConceptPickerCalendar].SetVisible(true) }
	f.els[ConceptSubmit].OnClick = func() { f.els[ConceptFormModal].SetVisible(false) }
	f.els[ConceptPickerMeridiem].SetText("PM")

	for _, label := range []string{"July 29, 2025", "July 30, 2025", "July 31, 2025"} {
		f.days = append(f.days, f.page.NewElement("day "+label).WithAttr("aria-label", label))
	}
	f.page.Set(sel(ConceptPickerDays), f.days...)
	return f
}

// remove makes concept resolve to nothing.
func (f *fakeForm) remove(c locator.Concept) {
	f.page.Set(sel(c))
}

func (f *fakeForm) driver() *Driver {
	reg := locator.NewRegistry()
	for _, c := range allConcepts {
		reg.Register(c, locator.Rule{Strategy: locator.CSS("#" + string(c))})
	}
	exec := executor.New(f.page, executor.Options{
		OverlayTimeout: 20 * time.Millisecond,
		SettleWindow:   10 * time.Millisecond,
		PollInterval:   time.Millisecond,
	})
	con := console.New(f.page, locator.New(f.page, reg, time.Millisecond), exec)
	return New(con, Options{ModalWait: 20 * time.Millisecond, PageWait: 20 * time.Millisecond})
}

func taxRecord(t *testing.T, gateway string) domain.DerivedTaxRecord {
	t.Helper()
	return derive.Build(gateway, domain.LabelDeposit,
		time.Date(2025, 7, 29, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("3739.2"))
}

func TestReplay_FillsFormInOrder(t *testing.T) {
	f := newFakeForm()
	d := f.driver()

	ok, err := d.Replay(context.Background(), taxRecord(t, "SKPAY"))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{
		"gateway.control:click",
		"gateway.input:type:SKPAY",
		"gateway.input:press:Enter",
		"form.open:click",
		"form.direction.out:click",
		"form.category.control:click",
		"form.category.option:click",
		"form.bank_reference:type:Interest Charge Depo 29/07",
		"form.remarks:type:Interest Charge DEPO 29/07",
		"form.amount:type:3739.20",
		"picker.input:click",
		"day July 30, 2025:click",
		"picker.hour:type:00",
		"picker.minute:type:00",
		"picker.ampm:click",
		"picker.input:press:Enter",
		"form.submit:click",
	}, f.page.Journal.Entries())
}

func TestReplay_GatewaySetupOncePerGateway(t *testing.T) {
	f := newFakeForm()
	d := f.driver()
	ctx := context.Background()

	for _, gw := range []string{"SKPAY", "SKPAY", "MOHAMMED AMEER ABBAS"} {
		_, err := d.Replay(ctx, taxRecord(t, gw))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"click", "click"}, f.els[ConceptGatewayControl].Actions())
	assert.Equal(t, "Karnataka Bank 2", f.els[ConceptGatewayInput].Value())
	assert.True(t, d.Configured("SKPAY"))
	assert.True(t, d.Configured("MOHAMMED AMEER ABBAS"))
}

func TestReplay_MeridiemAlreadyCorrect(t *testing.T) {
	f := newFakeForm()
	f.els[ConceptPickerMeridiem].SetText(" am ")

	_, err := f.driver().Replay(context.Background(), taxRecord(t, "SKPAY"))
	require.NoError(t, err)
	assert.Empty(t, f.els[ConceptPickerMeridiem].Actions())
}

func TestReplay_MissingRemarksIsSkipped(t *testing.T) {
	f := newFakeForm()
	f.remove(ConceptRemarks)

	ok, err := f.driver().Replay(context.Background(), taxRecord(t, "SKPAY"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3739.20", f.els[ConceptAmount].Value())
}

func TestReplay_SubmitFallsBackToEnter(t *testing.T) {
	f := newFakeForm()
	f.remove(ConceptSubmit)
	first := f.page.NewElement("first input")
	first.OnPress = func(ui.Key) { f.els[ConceptFormModal].SetVisible(false) }
	f.page.Set(sel(ConceptFormInputs), first, f.page.NewElement("second input"))

	ok, err := f.driver().Replay(context.Background(), taxRecord(t, "SKPAY"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"press:Enter"}, first.Actions())
}

func TestReplay_UnconfirmedSubmitIsSoft(t *testing.T) {
	f := newFakeForm()
	f.els[ConceptSubmit].OnClick = nil

	ok, err := f.driver().Replay(context.Background(), taxRecord(t, "SKPAY"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplay_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeForm)
		step  string
	}{
		{
			name:  "day not in picker",
			setup: func(f *fakeForm) { f.page.Set(sel(ConceptPickerDays), f.days[0]) },
			step:  StepDay,
		},
		{
			name:  "calendar never opens",
			setup: func(f *fakeForm) { f.els[ConceptPickerInput].OnClick = nil },
			step:  StepPicker,
		},
		{
			name:  "category option missing",
			setup: func(f *fakeForm) { f.remove(ConceptCategoryOption) },
			step:  StepCategory,
		},
		{
			name:  "form does not open",
			setup: func(f *fakeForm) { f.els[ConceptFormOpen].OnClick = nil },
			step:  StepOpenForm,
		},
		{
			name:  "amount field missing",
			setup: func(f *fakeForm) { f.remove(ConceptAmount) },
			step:  StepAmount,
		},
		{
			name:  "transaction table never shows",
			setup: func(f *fakeForm) { f.remove(ConceptGatewayTable) },
			step:  StepGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeForm()
			tt.setup(f)

			ok, err := f.driver().Replay(context.Background(), taxRecord(t, "SKPAY"))
			assert.False(t, ok)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrReplay)

			var re *ReplayError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.step, re.Step)
			assert.Equal(t, "TAX-SKPAY-DEPO-29072025", re.OrderIDTag)
		})
	}
}

func TestReplay_UnmappedGateway(t *testing.T) {
	f := newFakeForm()

	_, err := f.driver().Replay(context.Background(), taxRecord(t, "NOPAY"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnmappedGateway)
	assert.NotErrorIs(t, err, ErrReplay)
	assert.Empty(t, f.page.Journal.Entries())
}
