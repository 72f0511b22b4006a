package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/console-reconciler/internal/domain"
)

// groups is an in-order GroupSource for tests.
type groups struct {
	order []string
	recs  map[string][]domain.TransactionRecord
}

func (g *groups) add(r domain.TransactionRecord) {
	if g.recs == nil {
		g.recs = map[string][]domain.TransactionRecord{}
	}
	if _, ok := g.recs[r.Gateway]; !ok {
		g.order = append(g.order, r.Gateway)
	}
	g.recs[r.Gateway] = append(g.recs[r.Gateway], r)
}

func (g *groups) Gateways() []string { return g.order }

func (g *groups) Records(gw string) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, len(g.recs[gw]))
	copy(out, g.recs[gw])
	return out
}

func rec(gw, id, amount, fee, ts string) domain.TransactionRecord {
	r := domain.TransactionRecord{
		Gateway:   gw,
		OrderID:   id,
		Phone:     "9" + id,
		Amount:    decimal.RequireFromString(amount),
		FeeAmount: decimal.RequireFromString(fee),
		RawTime:   ts,
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", ts, time.UTC); err == nil {
		r.Timestamp = &t
	}
	return r
}

func TestAggregate_TotalsAndOrdering(t *testing.T) {
	g := &groups{}
	g.add(rec("SKPAY", "1", "1000", "10.5", "2025-07-29 09:00:00"))
	g.add(rec("SKPAY", "2", "250.25", "2.5", ""))
	g.add(rec("XYPAY", "3", "75", "0.75", "2025-07-29 08:00:00"))
	g.add(rec("SKPAY", "4", "3000", "30", "2025-07-29 18:00:00"))
	g.add(rec("SKPAY", "5", "1", "0", "garbage"))

	aggs := Aggregate(g)
	require.Len(t, aggs, 2)

	sk := aggs[0]
	assert.Equal(t, "SKPAY", sk.Gateway)
	assert.Equal(t, "4251.25", sk.TotalAmount.String())
	assert.Equal(t, "43", sk.TotalFee.String())
	ids := []string{}
	for _, r := range sk.Records {
		ids = append(ids, r.OrderID)
	}
	assert.Equal(t, []string{"4", "1", "2", "5"}, ids)
	require.NotNil(t, sk.SourceDate)
	assert.Equal(t, 9, sk.SourceDate.Hour())

	assert.Equal(t, "XYPAY", aggs[1].Gateway)
}

func TestAggregate_TotalsIndependentOfArrivalOrder(t *testing.T) {
	rows := []domain.TransactionRecord{
		rec("SKPAY", "1", "10.10", "0.10", "2025-07-29 09:00:00"),
		rec("SKPAY", "2", "20.20", "0.20", "2025-07-29 10:00:00"),
		rec("SKPAY", "3", "30.30", "0.30", ""),
	}
	forward, backward := &groups{}, &groups{}
	for i := range rows {
		forward.add(rows[i])
		backward.add(rows[len(rows)-1-i])
	}
	a, b := Aggregate(forward)[0], Aggregate(backward)[0]
	assert.True(t, a.TotalAmount.Equal(b.TotalAmount))
	assert.True(t, a.TotalFee.Equal(b.TotalFee))
	assert.Equal(t, "60.6", a.TotalAmount.String())
}

func TestRender_Canonical(t *testing.T) {
	g := &groups{}
	g.add(rec("SKPAY", "A1", "1234.5", "3739.2", "2025-07-29 10:00:00"))
	g.add(rec("SKPAY", "A2", "10", "0", "2025-07-29 11:00:00"))
	g.add(rec("XYPAY", "B1", "5", "0.5", ""))

	want := "" +
		"\n==== SKPAY (2 records) | Total Amount: Rs 1,244.50 | Total Fee: Rs 3739.20 ====\n" +
		"\nRecord #1\nOrder ID: A2\nPhone Number: 9A2\nAmount: 10.00\nTime: 2025-07-29 11:00:00\n" +
		"\nRecord #2\nOrder ID: A1\nPhone Number: 9A1\nAmount: 1,234.50\nTime: 2025-07-29 10:00:00\n" +
		"\n>> Total Amount for SKPAY: Rs 1,244.50\n" +
		"\n==== XYPAY (1 record) | Total Amount: Rs 5.00 | Total Fee: Rs 0.50 ====\n" +
		"\nRecord #1\nOrder ID: B1\nPhone Number: 9B1\nAmount: 5.00\nTime: \n" +
		"\n>> Total Amount for XYPAY: Rs 5.00\n" +
		"\n==== GRAND TOTAL for All Gateways: Rs 1,249.50 | Total Records: 3 ====\n\n" +
		"(depo) pg SKPAY 29/07/2025 | Total Fee: Rs 3739.20\n" +
		"(depo) pg XYPAY Unknown | Total Fee: Rs 0.50\n"

	got := Render(Aggregate(g), domain.LabelDeposit)
	assert.Equal(t, want, got)
	assert.Equal(t, got, Render(Aggregate(g), domain.LabelDeposit), "render must be deterministic")
}

func TestRender_Empty(t *testing.T) {
	got := Render(nil, domain.LabelWithdrawal)
	assert.Equal(t, "\n==== GRAND TOTAL for All Gateways: Rs 0.00 | Total Records: 0 ====\n\n", got)
}

func TestFormatGrouped(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0", "0.00"},
		{"999.999", "1,000.00"},
		{"1234567.891", "1,234,567.89"},
		{"-1234.5", "-1,234.50"},
		{"100", "100.00"},
		{"100000", "100,000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatGrouped(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestWriteFile(t *testing.T) {
	g := &groups{}
	g.add(rec("SKPAY", "A1", "1", "1", "2025-07-29 10:00:00"))
	aggs := Aggregate(g)

	path := filepath.Join(t.TempDir(), "reports", FileName(domain.LabelWithdrawal))
	require.NoError(t, WriteFile(path, aggs, domain.LabelWithdrawal))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Render(aggs, domain.LabelWithdrawal), string(data))
	assert.Equal(t, "wd-transaction_history.txt", filepath.Base(path))
}
