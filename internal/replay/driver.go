// Package replay enters derived tax records into the console as bank-charge
// transactions, one record at a time.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/console-reconciler/internal/console"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Concepts used by the driver.
const (
	ConceptGatewayControl  locator.Concept = "gateway.control"
	ConceptGatewayDropdown locator.Concept = "gateway.dropdown"
	ConceptGatewayInput    locator.Concept = "gateway.input"
	ConceptGatewayTable    locator.Concept = "gateway.table"

	ConceptFormOpen         locator.Concept = "form.open"
	ConceptFormModal        locator.Concept = "form.modal"
	ConceptDirectionOut     locator.Concept = "form.direction.out"
	ConceptCategoryControl  locator.Concept = "form.category.control"
	ConceptCategoryDropdown locator.Concept = "form.category.dropdown"
	ConceptCategoryOption   locator.Concept = "form.category.option"
	ConceptBankReference    locator.Concept = "form.bank_reference"
	ConceptRemarks          locator.Concept = "form.remarks"
	ConceptAmount           locator.Concept = "form.amount"
	ConceptSubmit           locator.Concept = "form.submit"
	ConceptFormInputs       locator.Concept = "form.inputs"
	ConceptPickerInput      locator.Concept = "picker.input"
	ConceptPickerCalendar   locator.Concept = "picker.calendar"
	ConceptPickerDays       locator.Concept = "picker.days"
	ConceptPickerHour       locator.Concept = "picker.hour"
	ConceptPickerMinute     locator.Concept = "picker.minute"
	ConceptPickerMeridiem   locator.Concept = "picker.ampm"
	ConceptPageBody         locator.Concept = "page.body"
)

// DayLabelLayout is the aria-label format of a picker day cell.
const DayLabelLayout = "January 2, 2006"

// Step names reported in ReplayError.
const (
	StepGateway   = "gateway"
	StepOpenForm  = "open form"
	StepDirection = "direction"
	StepCategory  = "category"
	StepReference = "bank reference"
	StepRemarks   = "remarks"
	StepAmount    = "amount"
	StepPicker    = "picker"
	StepDay       = "day"
	StepHour      = "hour"
	StepMinute    = "minute"
	StepMeridiem  = "am/pm"
	StepConfirm   = "confirm"
	StepSubmit    = "submit"
)

// Options are the wait budgets of the driver.
type Options struct {
	// ModalWait bounds waits for the form, dropdowns and the calendar.
	ModalWait time.Duration
	// PageWait bounds the wait for the form to close after submit.
	PageWait time.Duration
}

// Driver replays tax records through a Console.
type Driver struct {
	con  *console.Console
	opts Options

	configured map[string]struct{}
}

// New creates a Driver with an empty gateway memo.
func New(con *console.Console, opts Options) *Driver {
	return &Driver{
		con:        con,
		opts:       opts,
		configured: make(map[string]struct{}),
	}
}

// Configured reports whether gateway setup already ran for gateway.
func (d *Driver) Configured(gateway string) bool {
	_, ok := d.configured[gateway]
	return ok
}

// SetupGateway selects gateway in the session context. It runs at most once
// per gateway for the lifetime of the driver.
func (d *Driver) SetupGateway(ctx context.Context, gateway string) error {
	if d.Configured(gateway) {
		return nil
	}
	log := logger.FromContext(ctx).With().Str("gateway", gateway).Logger()

	display, ok := domain.GatewayDisplayName(gateway)
	if !ok {
		return fmt.Errorf("SetupGateway: %s: %w", gateway, ErrUnmappedGateway)
	}

	if err := d.con.WaitOverlays(ctx); err != nil {
		return fmt.Errorf("SetupGateway: waiting for overlays: %w", err)
	}

	opened, err := d.con.Click(ctx, ConceptGatewayControl, d.con.Present(ConceptGatewayDropdown))
	if err != nil {
		return fmt.Errorf("SetupGateway: opening gateway control: %w", err)
	}
	if !opened {
		log.Warn().Msg("gateway dropdown did not show, typing anyway")
	}

	if err := d.con.Type(ctx, ConceptGatewayInput, display); err != nil {
		return fmt.Errorf("SetupGateway: typing gateway: %w", err)
	}
	if err := d.con.Press(ctx, ConceptGatewayInput, ui.KeyEnter); err != nil {
		return fmt.Errorf("SetupGateway: confirming gateway: %w", err)
	}
	if _, err := d.con.Resolve(ctx, ConceptGatewayTable); err != nil {
		return fmt.Errorf("SetupGateway: waiting for transaction table: %w", err)
	}

	d.configured[gateway] = struct{}{}
	log.Info().Str("display", display).Msg("gateway selected")
	return nil
}

// Replay enters rec into the console. The returned bool is whether the form
// closed after submission. Any step that cannot complete yields a ReplayError.
func (d *Driver) Replay(ctx context.Context, rec domain.DerivedTaxRecord) (bool, error) {
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).With().
		Str("order_id_tag", rec.OrderIDTag).
		Str("gateway", rec.Gateway).
		Logger())
	log := logger.FromContext(ctx)

	fail := func(step string, err error) (bool, error) {
		return false, &ReplayError{OrderIDTag: rec.OrderIDTag, Step: step, Err: err}
	}

	if err := d.SetupGateway(ctx, rec.Gateway); err != nil {
		if errors.Is(err, ErrUnmappedGateway) {
			return false, err
		}
		return fail(StepGateway, err)
	}

	if err := d.openForm(ctx); err != nil {
		return fail(StepOpenForm, err)
	}
	if _, err := d.con.Click(ctx, ConceptDirectionOut, nil); err != nil {
		return fail(StepDirection, err)
	}
	if err := d.selectCategory(ctx); err != nil {
		return fail(StepCategory, err)
	}

	if err := d.con.Type(ctx, ConceptBankReference, rec.BankReference); err != nil {
		return fail(StepReference, err)
	}
	if _, err := d.con.TypeOptional(ctx, ConceptRemarks, rec.Remarks); err != nil {
		return fail(StepRemarks, err)
	}
	if err := d.con.Type(ctx, ConceptAmount, rec.Amount.StringFixed(2)); err != nil {
		return fail(StepAmount, err)
	}

	if err := d.openPicker(ctx); err != nil {
		return fail(StepPicker, err)
	}
	if err := d.pickDay(ctx, rec.ScheduledDatetime); err != nil {
		return fail(StepDay, err)
	}
	if err := d.con.Type(ctx, ConceptPickerHour, rec.Hour); err != nil {
		return fail(StepHour, err)
	}
	if err := d.con.Type(ctx, ConceptPickerMinute, rec.Minute); err != nil {
		return fail(StepMinute, err)
	}
	if err := d.setMeridiem(ctx, rec.HourValue()); err != nil {
		return fail(StepMeridiem, err)
	}
	if err := d.confirmPicker(ctx); err != nil {
		return fail(StepConfirm, err)
	}

	closed, err := d.submit(ctx)
	if err != nil {
		return fail(StepSubmit, err)
	}
	if closed {
		log.Info().Str("amount", rec.Amount.StringFixed(2)).Msg("tax record submitted")
	} else {
		log.Warn().Msg("form still open after submit")
	}
	return closed, nil
}

func (d *Driver) openForm(ctx context.Context) error {
	ok, err := d.con.Click(ctx, ConceptFormOpen, d.con.Present(ConceptFormModal))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return d.con.WaitVisible(ctx, ConceptFormModal, d.opts.ModalWait)
}

func (d *Driver) selectCategory(ctx context.Context) error {
	opened, err := d.con.Click(ctx, ConceptCategoryControl, d.con.Present(ConceptCategoryDropdown))
	if err != nil {
		return fmt.Errorf("opening category control: %w", err)
	}
	if !opened {
		log := logger.FromContext(ctx)
		log.Debug().Msg("category dropdown not detected, looking for option anyway")
	}
	if _, err := d.con.Click(ctx, ConceptCategoryOption, nil); err != nil {
		return fmt.Errorf("selecting category option: %w", err)
	}
	return nil
}

func (d *Driver) openPicker(ctx context.Context) error {
	ok, err := d.con.Click(ctx, ConceptPickerInput, d.con.Present(ConceptPickerCalendar))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := d.con.WaitVisible(ctx, ConceptPickerCalendar, d.opts.ModalWait); err != nil {
		return fmt.Errorf("calendar did not open: %w", err)
	}
	return nil
}

func (d *Driver) pickDay(ctx context.Context, day time.Time) error {
	want := day.Format(DayLabelLayout)

	cells, err := d.con.Locator().ResolveAll(ctx, ConceptPickerDays, nil)
	if err != nil {
		return err
	}
	for _, cell := range cells {
		label, ok, err := cell.Attribute(ctx, "aria-label")
		if err != nil || !ok || label != want {
			continue
		}
		if _, err := d.con.Executor().Click(ctx, cell, nil); err != nil {
			return fmt.Errorf("clicking %q: %w", want, err)
		}
		return nil
	}
	return fmt.Errorf("day %q not in picker: %w", want, locator.ErrNotFound)
}

// setMeridiem flips the AM/PM toggle only when it disagrees with hour.
func (d *Driver) setMeridiem(ctx context.Context, hour int) error {
	target := "AM"
	if hour >= 12 {
		target = "PM"
	}

	toggle, err := d.con.Resolve(ctx, ConceptPickerMeridiem)
	if err != nil {
		return err
	}
	current, err := toggle.Text(ctx)
	if err != nil {
		return err
	}
	if strings.ToUpper(strings.TrimSpace(current)) == target {
		return nil
	}
	if _, err := d.con.Executor().Click(ctx, toggle, nil); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("meridiem", target).Msg("am/pm toggled")
	return nil
}

func (d *Driver) confirmPicker(ctx context.Context) error {
	err := d.con.Press(ctx, ConceptPickerInput, ui.KeyEnter)
	if err == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	log.Warn().Err(err).Msg("could not confirm on picker input, using page body")
	if err := d.con.Press(ctx, ConceptPageBody, ui.KeyEnter); err != nil {
		return err
	}
	return nil
}

func (d *Driver) submit(ctx context.Context) (bool, error) {
	closed := func(ctx context.Context) (bool, error) {
		ok, err := d.con.Present(ConceptFormModal)(ctx)
		return !ok, err
	}

	_, err := d.con.Click(ctx, ConceptSubmit, closed)
	if err != nil {
		if !errors.Is(err, locator.ErrNotFound) {
			return false, err
		}
		log := logger.FromContext(ctx)
		log.Warn().Msg("submit button not found, pressing Enter on first input")
		inputs, ierr := d.con.Locator().ResolveAll(ctx, ConceptFormInputs, nil)
		if ierr != nil {
			return false, fmt.Errorf("no submit control: %w", ierr)
		}
		if _, err := d.con.Executor().Press(ctx, inputs[0], ui.KeyEnter); err != nil {
			return false, err
		}
	}

	if err := d.con.WaitGone(ctx, ConceptFormModal, d.opts.PageWait); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}
