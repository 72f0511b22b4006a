// Package derive turns the fee-summary section of a report back into tax
// records ready to be replayed into the console.
package derive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
	"github.com/dvloznov/console-reconciler/internal/report"
)

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("report parse error")

// ParseError describes a report that cannot be derived from.
type ParseError struct {
	Source string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%s: %s", ErrParse, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrParse, e.Source, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

var (
	grandTotalRe = regexp.MustCompile(regexp.QuoteMeta(report.GrandTotalMarker) + `[^\n]*`)
	feeLineRe    = regexp.MustCompile(`^\((\w+)\)\s+pg\s+(.+?)\s+(\d{2}/\d{2}/\d{4})\s+\|\s+Total Fee:\s+Rs\s+([\d,]+(?:\.\d*)?)\s*$`)
)

const (
	scheduledHour   = "00"
	scheduledMinute = "00"
)

// Records derives one tax record per valid fee-summary line of reportText.
//
// expect restricts derivation to lines carrying that label; an empty expect
// accepts any known label. Lines for gateways outside the allow-list, with an
// unknown or unexpected label, or with a bad date or amount are logged and
// skipped. A report without the grand-total marker is a ParseError.
func Records(ctx context.Context, reportText string, expect domain.Label) ([]domain.DerivedTaxRecord, error) {
	return recordsFrom(ctx, "", reportText, expect)
}

func recordsFrom(ctx context.Context, source, reportText string, expect domain.Label) ([]domain.DerivedTaxRecord, error) {
	log := logger.FromContext(ctx)
	if source != "" {
		log = log.With().Str("source", source).Logger()
	}

	text := strings.TrimPrefix(reportText, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	loc := grandTotalRe.FindStringIndex(text)
	if loc == nil {
		return nil, &ParseError{Source: source, Reason: "grand total marker not found"}
	}

	var out []domain.DerivedTaxRecord
	for _, line := range strings.Split(text[loc[1]:], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := feeLineRe.FindStringSubmatch(line)
		if m == nil {
			log.Warn().Str("line", line).Msg("line does not match fee summary grammar")
			continue
		}
		labelCode, gateway, dateText, amountText := m[1], strings.TrimSpace(m[2]), m[3], m[4]

		label, err := domain.ParseLabel(labelCode)
		if err != nil {
			log.Warn().Str("line", line).Msg("unknown label, skipping")
			continue
		}
		if expect != "" && label != expect {
			log.Warn().Str("line", line).Str("expected", expect.Code()).Msg("label does not match report, skipping")
			continue
		}
		if !domain.IsAllowedGateway(gateway) {
			log.Warn().Str("gateway", gateway).Msg("gateway not in allow-list, skipping")
			continue
		}

		date, err := time.ParseInLocation(report.FeeDateLayout, dateText, time.UTC)
		if err != nil {
			log.Warn().Str("line", line).Msg("invalid date, skipping")
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(amountText, ",", ""))
		if err != nil {
			log.Warn().Str("line", line).Msg("invalid amount, skipping")
			continue
		}

		out = append(out, Build(gateway, label, date, amount))
	}

	log.Info().Int("records", len(out)).Msg("tax records derived")
	return out, nil
}

// Build applies the tax posting templates to one fee line.
func Build(gateway string, label domain.Label, source time.Time, amount decimal.Decimal) domain.DerivedTaxRecord {
	dayMonth := source.Format("02/01")
	return domain.DerivedTaxRecord{
		Gateway:           gateway,
		SourceLabel:       label,
		TaxDateSource:     source,
		Amount:            amount,
		ScheduledDatetime: source.AddDate(0, 0, 1),
		Hour:              scheduledHour,
		Minute:            scheduledMinute,
		BankReference:     fmt.Sprintf("Interest Charge %s %s", label.Title(), dayMonth),
		Remarks:           fmt.Sprintf("Interest Charge %s %s", label.Upper(), dayMonth),
		OrderIDTag:        fmt.Sprintf("TAX-%s-%s-%s", gateway, label.Upper(), source.Format("02012006")),
	}
}
