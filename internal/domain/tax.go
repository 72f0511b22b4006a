package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DerivedTaxRecord is a tax adjustment computed from a report's fee line.
// It is replayed into the console as a bank-charge transaction.
type DerivedTaxRecord struct {
	Gateway     string
	SourceLabel Label
	// TaxDateSource is the date printed on the fee-summary line.
	TaxDateSource time.Time
	Amount        decimal.Decimal

	// ScheduledDatetime is TaxDateSource plus one day.
	ScheduledDatetime time.Time
	Hour              string
	Minute            string

	BankReference string
	Remarks       string
	// OrderIDTag is unique per gateway, label and source date.
	OrderIDTag string
}

// HourValue returns the scheduled hour as an int, 0 when Hour is not numeric.
func (r DerivedTaxRecord) HourValue() int {
	h := 0
	for _, c := range r.Hour {
		if c < '0' || c > '9' {
			return 0
		}
		h = h*10 + int(c-'0')
	}
	return h
}
