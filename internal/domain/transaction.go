package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownGateway is used for rows whose gateway cell is missing.
const UnknownGateway = "Unknown"

// TransactionRecord is one row of the console's transaction grid.
// OrderID is the natural key; a record never changes after extraction.
type TransactionRecord struct {
	Gateway   string
	OrderID   string
	Phone     string
	Amount    decimal.Decimal
	FeeAmount decimal.Decimal

	// Timestamp is nil when the time cell was absent or unparsable.
	Timestamp *time.Time
	// RawTime is the time cell exactly as rendered, used in reports.
	RawTime string
}

// HasTimestamp reports whether the record carries a parsed time.
func (r TransactionRecord) HasTimestamp() bool {
	return r.Timestamp != nil
}

// GatewayAggregate is a read-only view of one gateway's records and totals.
type GatewayAggregate struct {
	Gateway     string
	Records     []TransactionRecord
	TotalAmount decimal.Decimal
	TotalFee    decimal.Decimal

	// SourceDate is the time of the first record extracted for the gateway,
	// nil when that record had no timestamp.
	SourceDate *time.Time
}

// Count returns the number of records in the aggregate.
func (a GatewayAggregate) Count() int {
	return len(a.Records)
}
