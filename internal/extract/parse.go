package extract

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/console-reconciler/internal/config"
	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

// RawRow is the trimmed cell text of one grid row.
type RawRow struct {
	Page  int
	Index int
	Cells []string
}

// RowParser turns raw rows into records.
type RowParser struct {
	Columns     config.Columns
	TimeLayouts []string
}

// Parse converts row into a record. Malformed amount or fee cells become zero
// with a warning so one bad cell never loses the rest of the page.
func (p RowParser) Parse(ctx context.Context, row RawRow) domain.TransactionRecord {
	log := logger.FromContext(ctx).With().Int("page", row.Page).Int("row", row.Index).Logger()
	cell := func(i int) string {
		if i < 0 || i >= len(row.Cells) {
			return ""
		}
		return row.Cells[i]
	}

	rec := domain.TransactionRecord{
		OrderID: cell(p.Columns.OrderID),
		Phone:   cell(p.Columns.Phone),
		Gateway: domain.UnknownGateway,
	}

	amount, err := ParseMoney(cell(p.Columns.Amount))
	if err != nil {
		log.Warn().Str("order_id", rec.OrderID).Str("cell", cell(p.Columns.Amount)).Msg("malformed amount, using 0")
	}
	rec.Amount = amount

	fee, err := ParseMoney(cell(p.Columns.Fee))
	if err != nil {
		log.Warn().Str("order_id", rec.OrderID).Str("cell", cell(p.Columns.Fee)).Msg("malformed fee, using 0")
	}
	rec.FeeAmount = fee

	if len(row.Cells) >= p.Columns.TimeMinCells {
		rec.RawTime = cell(p.Columns.Time)
		if ts, ok := p.parseTime(rec.RawTime); ok {
			rec.Timestamp = &ts
		} else if rec.RawTime != "" {
			log.Debug().Str("order_id", rec.OrderID).Str("cell", rec.RawTime).Msg("unparsable time")
		}
	}

	if len(row.Cells) >= p.Columns.GatewayMinCells {
		if gw := cell(p.Columns.Gateway); gw != "" {
			rec.Gateway = gw
		}
	}

	return rec
}

func (p RowParser) parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range p.TimeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseMoney parses a console money cell such as "Rs 1,234.50".
// An unparsable cell yields zero and a non-nil error.
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("Rs", "", ",", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// IsSummaryRow reports whether any cell carries one of the summary labels.
func IsSummaryRow(cells []string, labels []string) bool {
	for _, c := range cells {
		for _, l := range labels {
			if l != "" && strings.Contains(c, l) {
				return true
			}
		}
	}
	return false
}
