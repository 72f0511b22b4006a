// Package report aggregates extracted records per gateway and renders the
// canonical text report consumed by the tax derivation step.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/console-reconciler/internal/domain"
)

// GroupSource is the read side of an extraction session.
type GroupSource interface {
	Gateways() []string
	Records(gateway string) []domain.TransactionRecord
}

// Aggregate builds one GatewayAggregate per gateway, in the source's gateway
// order. Records are sorted newest first; records without a timestamp keep
// their extraction order at the end.
func Aggregate(src GroupSource) []domain.GatewayAggregate {
	gateways := src.Gateways()
	out := make([]domain.GatewayAggregate, 0, len(gateways))

	for _, gw := range gateways {
		recs := src.Records(gw)
		if len(recs) == 0 {
			continue
		}

		agg := domain.GatewayAggregate{
			Gateway:     gw,
			TotalAmount: decimal.Zero,
			TotalFee:    decimal.Zero,
			SourceDate:  recs[0].Timestamp,
		}
		for _, r := range recs {
			agg.TotalAmount = agg.TotalAmount.Add(r.Amount)
			agg.TotalFee = agg.TotalFee.Add(r.FeeAmount)
		}

		sort.SliceStable(recs, func(i, j int) bool {
			return newerFirst(recs[i], recs[j])
		})
		agg.Records = recs
		out = append(out, agg)
	}
	return out
}

func newerFirst(a, b domain.TransactionRecord) bool {
	switch {
	case a.Timestamp == nil:
		return false
	case b.Timestamp == nil:
		return true
	}
	return a.Timestamp.After(*b.Timestamp)
}

// GrandTotal sums amounts and record counts across aggregates.
func GrandTotal(aggs []domain.GatewayAggregate) (decimal.Decimal, int) {
	total := decimal.Zero
	n := 0
	for _, a := range aggs {
		total = total.Add(a.TotalAmount)
		n += a.Count()
	}
	return total, n
}
