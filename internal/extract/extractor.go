// Package extract walks the console's paginated transaction grid and merges
// its rows into an extraction session.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/console-reconciler/internal/config"
	"github.com/dvloznov/console-reconciler/internal/console"
	"github.com/dvloznov/console-reconciler/internal/executor"
	"github.com/dvloznov/console-reconciler/internal/locator"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/ui"
)

// Concepts the extractor resolves.
const (
	ConceptRows           locator.Concept = "table.rows"
	ConceptCells          locator.Concept = "table.cells"
	ConceptNoRecords      locator.Concept = "table.no_records"
	ConceptNext           locator.Concept = "pagination.next"
	ConceptStatusControl  locator.Concept = "filter.status.control"
	ConceptStatusApproved locator.Concept = "filter.status.approved"
)

const (
	DefaultNextAttempts = 2
	DefaultMaxPages     = 500
	DefaultRowsWait     = 20 * time.Second
)

// State is the extractor's position in the pagination walk.
type State int

const (
	Idle State = iota
	Extracting
	AwaitingNextPage
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Extracting:
		return "extracting"
	case AwaitingNextPage:
		return "awaiting-next-page"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configure an Extractor.
type Options struct {
	Columns       config.Columns
	SummaryLabels []string
	TimeLayouts   []string
	// RowsWait bounds how long a page may take to render rows or its
	// "no records" placeholder.
	RowsWait time.Duration
	// PageWait bounds how long a next click may take to change the rows.
	PageWait time.Duration
	// NextAttempts is how many clicks a next control gets before the walk ends.
	NextAttempts int
	// MaxPages stops a walk whose grid never runs out of pages.
	MaxPages int
	Poll     time.Duration
}

// OptionsFromProfile builds Options from a selector profile and wait budgets.
func OptionsFromProfile(p *config.Profile, waits config.Waits) Options {
	return Options{
		Columns:       p.Columns,
		SummaryLabels: p.SummaryLabels,
		TimeLayouts:   p.TimeLayouts,
		RowsWait:      waits.Rows,
		PageWait:      waits.Page,
		Poll:          waits.Poll,
	}
}

// Extractor is the paginated grid walker. One Extractor serves one run.
type Extractor struct {
	con    *console.Console
	opts   Options
	parser RowParser
	state  State
	page   int
}

// New creates an Extractor in the Idle state.
func New(con *console.Console, opts Options) *Extractor {
	if opts.NextAttempts <= 0 {
		opts.NextAttempts = DefaultNextAttempts
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Poll <= 0 {
		opts.Poll = ui.DefaultPollInterval
	}
	if opts.RowsWait <= 0 {
		opts.RowsWait = DefaultRowsWait
	}
	return &Extractor{
		con:    con,
		opts:   opts,
		parser: RowParser{Columns: opts.Columns, TimeLayouts: opts.TimeLayouts},
	}
}

// State returns the current state.
func (e *Extractor) State() State { return e.state }

// Page returns the 1-based number of the page being extracted.
func (e *Extractor) Page() int { return e.page }

// ApplyStatusFilter narrows the grid to approved transactions.
func (e *Extractor) ApplyStatusFilter(ctx context.Context) error {
	if _, err := e.con.Click(ctx, ConceptStatusControl, nil); err != nil {
		return fmt.Errorf("ApplyStatusFilter: opening status filter: %w", err)
	}
	if _, err := e.con.Click(ctx, ConceptStatusApproved, nil); err != nil {
		return fmt.Errorf("ApplyStatusFilter: selecting approved: %w", err)
	}
	return nil
}

// ExtractPage reads every data row of the current page. Each row is taken
// from a fresh row query so that a re-render between rows is tolerated.
func (e *Extractor) ExtractPage(ctx context.Context) ([]RawRow, error) {
	log := logger.FromContext(ctx)

	switch e.state {
	case Idle:
		e.state = Extracting
		e.page = 1
	case Done, Failed:
		return nil, nil
	}

	defer e.con.Release(ctx)
	loc := e.con.Locator()
	rows, empty, err := e.waitRows(ctx)
	if err != nil {
		e.state = Failed
		return nil, fmt.Errorf("ExtractPage: page %d: %w", e.page, err)
	}
	if empty {
		log.Info().Int("page", e.page).Msg("grid reports no records")
		return nil, nil
	}
	if len(rows) == 0 {
		log.Info().Int("page", e.page).Msg("no rows rendered")
		return nil, nil
	}

	out := make([]RawRow, 0, len(rows))
	for i := range rows {
		fresh, err := loc.Probe(ctx, ConceptRows, nil)
		if err != nil || i >= len(fresh) {
			log.Warn().Int("page", e.page).Int("row", i).Msg("row vanished before parsing")
			continue
		}

		cells, err := e.cellTexts(ctx, fresh[i])
		if err != nil {
			log.Warn().Err(err).Int("page", e.page).Int("row", i).Msg("could not read row")
			continue
		}
		if len(cells) < e.opts.Columns.MinCells {
			continue
		}
		if IsSummaryRow(cells, e.opts.SummaryLabels) {
			log.Debug().Int("page", e.page).Int("row", i).Msg("summary row skipped")
			continue
		}
		out = append(out, RawRow{Page: e.page, Index: i, Cells: cells})
	}

	log.Info().Int("page", e.page).Int("rows", len(out)).Msg("page extracted")
	return out, nil
}

// waitRows waits up to RowsWait for data rows or the "no records"
// placeholder, whichever shows first. A timeout yields no rows.
func (e *Extractor) waitRows(ctx context.Context) (rows []ui.Element, empty bool, err error) {
	loc := e.con.Locator()
	ready := func(ctx context.Context) (bool, error) {
		found, err := loc.Probe(ctx, ConceptRows, nil)
		if err == nil && len(found) > 0 {
			rows = found
			return true, nil
		}
		if err != nil && !errors.Is(err, locator.ErrNotFound) {
			return false, err
		}
		if _, err := loc.Probe(ctx, ConceptNoRecords, nil); err == nil {
			empty = true
			return true, nil
		}
		return false, nil
	}

	err = ui.Poll(ctx, e.opts.RowsWait, e.opts.Poll, ready)
	if errors.Is(err, ui.ErrWaitTimeout) {
		return nil, false, nil
	}
	return rows, empty, err
}

func (e *Extractor) cellTexts(ctx context.Context, row ui.Element) ([]string, error) {
	cells, err := e.con.Locator().Probe(ctx, ConceptCells, row)
	if errors.Is(err, locator.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(cells))
	for _, c := range cells {
		t, err := c.Text(ctx)
		if err != nil {
			return nil, err
		}
		texts = append(texts, strings.TrimSpace(t))
	}
	return texts, nil
}

// signature summarises the rendered rows so a page change can be detected.
func (e *Extractor) signature(ctx context.Context) (string, error) {
	rows, err := e.con.Locator().Probe(ctx, ConceptRows, nil)
	if errors.Is(err, locator.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range rows {
		t, err := r.Text(ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(t)
		b.WriteByte(0x1f)
	}
	return b.String(), nil
}

// AdvancePage clicks the next control and waits for the rows to change.
// It returns false once the control is absent, disabled or unresponsive,
// after which the extractor is Done.
func (e *Extractor) AdvancePage(ctx context.Context) (bool, error) {
	log := logger.FromContext(ctx)

	if e.state != Extracting {
		return false, nil
	}
	defer e.con.Release(ctx)

	if e.page >= e.opts.MaxPages {
		log.Warn().Int("max_pages", e.opts.MaxPages).Msg("page limit reached")
		e.state = Done
		return false, nil
	}

	before, err := e.signature(ctx)
	if err != nil {
		before = ""
	}

	changed := func(ctx context.Context) (bool, error) {
		sig, err := e.signature(ctx)
		if err != nil {
			return false, err
		}
		return sig != "" && sig != before, nil
	}
	// landed gives an unanswered click one more PageWait to show its page.
	landed := func() bool {
		if ui.Poll(ctx, e.opts.PageWait, e.opts.Poll, ui.Tolerant(changed)) != nil {
			return false
		}
		e.page++
		e.state = Extracting
		return true
	}

	for attempt := 1; attempt <= e.opts.NextAttempts; attempt++ {
		if attempt > 1 && landed() {
			log.Info().Int("page", e.page).Int("attempt", attempt).Msg("page change landed late")
			return true, nil
		}

		next, err := e.con.Locator().Resolve(ctx, ConceptNext, nil)
		if errors.Is(err, locator.ErrNotFound) {
			log.Info().Int("page", e.page).Msg("no next control, last page reached")
			e.state = Done
			return false, nil
		}
		if err != nil {
			e.state = Failed
			return false, fmt.Errorf("AdvancePage: resolving next: %w", err)
		}
		if enabled, err := next.Enabled(ctx); err == nil && !enabled {
			log.Info().Int("page", e.page).Msg("next control disabled, last page reached")
			e.state = Done
			return false, nil
		}

		e.state = AwaitingNextPage
		if _, err := e.con.Executor().Click(ctx, next, nil); err != nil {
			if executor.IsStale(err) {
				e.state = Extracting
				continue
			}
			e.state = Failed
			return false, fmt.Errorf("AdvancePage: clicking next: %w", err)
		}

		err = ui.Poll(ctx, e.opts.PageWait, e.opts.Poll, ui.Tolerant(changed))
		if err == nil {
			e.page++
			e.state = Extracting
			return true, nil
		}
		if ctx.Err() != nil {
			e.state = Failed
			return false, ctx.Err()
		}
		log.Warn().Int("page", e.page).Int("attempt", attempt).Msg("next click did not change the rows")
		e.state = Extracting
	}

	if landed() {
		return true, nil
	}
	e.state = Done
	return false, nil
}

// Run walks every page into sess and returns it. A nil sess starts a new one.
func (e *Extractor) Run(ctx context.Context, sess *Session) (*Session, error) {
	log := logger.FromContext(ctx)
	if sess == nil {
		sess = NewSession()
	}

	for {
		rows, err := e.ExtractPage(ctx)
		if err != nil {
			return sess, err
		}
		sess.CurrentPage = e.page
		if len(rows) == 0 {
			e.state = Done
			break
		}

		added := 0
		for _, row := range rows {
			if sess.Merge(ctx, e.parser.Parse(ctx, row)) {
				added++
			}
		}
		log.Debug().Int("page", e.page).Int("added", added).Msg("page merged")

		more, err := e.AdvancePage(ctx)
		if err != nil {
			return sess, err
		}
		if !more {
			break
		}
	}

	log.Info().
		Int("pages", e.page).
		Int("records", sess.Len()).
		Int("duplicates", sess.DuplicateCount).
		Msg("extraction finished")
	return sess, nil
}
