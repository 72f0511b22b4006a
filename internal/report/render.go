package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/console-reconciler/internal/domain"
)

// GrandTotalMarker starts the grand-total line. Fee lines follow it.
const GrandTotalMarker = "==== GRAND TOTAL"

// UnknownDate is written on fee lines whose gateway has no source date.
const UnknownDate = "Unknown"

// FeeDateLayout is the date format of fee-summary lines.
const FeeDateLayout = "02/01/2006"

// FileName is the conventional report name for label.
func FileName(label domain.Label) string {
	return label.Code() + "-transaction_history.txt"
}

// Render returns the canonical report text.
func Render(aggs []domain.GatewayAggregate, label domain.Label) string {
	var b strings.Builder
	_ = Write(&b, aggs, label)
	return b.String()
}

// Write writes the canonical report to w. The fee-summary lines at the end
// are parsed back by the derivation step, so their grammar must not change.
func Write(w io.Writer, aggs []domain.GatewayAggregate, label domain.Label) error {
	bw := bufio.NewWriter(w)

	for _, a := range aggs {
		plural := "s"
		if a.Count() == 1 {
			plural = ""
		}
		fmt.Fprintf(bw, "\n==== %s (%d record%s) | Total Amount: Rs %s | Total Fee: Rs %s ====\n",
			a.Gateway, a.Count(), plural, FormatGrouped(a.TotalAmount), a.TotalFee.StringFixed(2))

		for i, r := range a.Records {
			fmt.Fprintf(bw, "\nRecord #%d\nOrder ID: %s\nPhone Number: %s\nAmount: %s\nTime: %s\n",
				i+1, r.OrderID, r.Phone, FormatGrouped(r.Amount), r.RawTime)
		}

		fmt.Fprintf(bw, "\n>> Total Amount for %s: Rs %s\n", a.Gateway, FormatGrouped(a.TotalAmount))
	}

	total, n := GrandTotal(aggs)
	fmt.Fprintf(bw, "\n%s for All Gateways: Rs %s | Total Records: %d ====\n\n", GrandTotalMarker, FormatGrouped(total), n)

	for _, a := range aggs {
		fmt.Fprintln(bw, FeeLine(a, label))
	}

	return bw.Flush()
}

// FeeLine renders the fee-summary line of one gateway, without newline.
func FeeLine(a domain.GatewayAggregate, label domain.Label) string {
	date := UnknownDate
	if a.SourceDate != nil {
		date = a.SourceDate.Format(FeeDateLayout)
	}
	return fmt.Sprintf("(%s) pg %s %s | Total Fee: Rs %s", label.Code(), a.Gateway, date, a.TotalFee.StringFixed(2))
}

// FormatGrouped formats d with two decimals and comma thousands separators.
func FormatGrouped(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

// WriteFile writes the report to path and syncs it to disk.
func WriteFile(path string, aggs []domain.GatewayAggregate, label domain.Label) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("WriteFile: creating %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteFile: creating %s: %w", path, err)
	}
	defer f.Close()

	if err := Write(f, aggs, label); err != nil {
		return fmt.Errorf("WriteFile: writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("WriteFile: syncing %s: %w", path, err)
	}
	return f.Close()
}
