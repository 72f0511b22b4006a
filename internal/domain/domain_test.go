package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    Label
		wantErr bool
	}{
		{"depo", LabelDeposit, false},
		{"Deposit", LabelDeposit, false},
		{"wd", LabelWithdrawal, false},
		{" WITHDRAWAL ", LabelWithdrawal, false},
		{"refund", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLabel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLabelCasing(t *testing.T) {
	assert.Equal(t, "Depo", LabelDeposit.Title())
	assert.Equal(t, "DEPO", LabelDeposit.Upper())
	assert.Equal(t, "Wd", LabelWithdrawal.Title())
	assert.Equal(t, "WD", LabelWithdrawal.Upper())
	assert.Equal(t, "withdrawal", LabelWithdrawal.String())
}

func TestGatewayDisplayName(t *testing.T) {
	tests := []struct {
		code   string
		want   string
		wantOK bool
	}{
		{"SKPAY", "SKPAY", true},
		{"MOHAMMED AMEER ABBAS", "Karnataka Bank 2", true},
		{"Test2", "Test2", true},
		{"skpay", "", false},
		{"NOPE", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := GatewayDisplayName(tt.code)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllowedGatewaysIsCopy(t *testing.T) {
	list := AllowedGateways()
	require.Len(t, list, 16)
	list[0] = "MUTATED"
	assert.True(t, IsAllowedGateway("XYPAY"))
}

func TestDerivedTaxRecord_HourValue(t *testing.T) {
	assert.Equal(t, 0, DerivedTaxRecord{Hour: "00"}.HourValue())
	assert.Equal(t, 13, DerivedTaxRecord{Hour: "13"}.HourValue())
	assert.Equal(t, 0, DerivedTaxRecord{Hour: "x1"}.HourValue())
}

func TestPlayerRecord_HasEmail(t *testing.T) {
	assert.False(t, PlayerRecord{Email: "-"}.HasEmail())
	assert.False(t, PlayerRecord{}.HasEmail())
	assert.True(t, PlayerRecord{Email: "a@b.com"}.HasEmail())
}
