package domain

import (
	"fmt"
	"strings"
)

// Label is the report provenance: deposits or withdrawals.
type Label string

const (
	LabelDeposit    Label = "depo"
	LabelWithdrawal Label = "wd"
)

// ParseLabel accepts the short report code or the long name.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "depo", "deposit":
		return LabelDeposit, nil
	case "wd", "withdrawal":
		return LabelWithdrawal, nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// Code is the token written into fee-summary lines, e.g. "depo".
func (l Label) Code() string {
	return string(l)
}

// Title is the code with a leading capital, e.g. "Depo".
func (l Label) Title() string {
	s := l.Code()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// Upper is the code in capitals, e.g. "DEPO".
func (l Label) Upper() string {
	return strings.ToUpper(l.Code())
}

func (l Label) String() string {
	switch l {
	case LabelDeposit:
		return "deposit"
	case LabelWithdrawal:
		return "withdrawal"
	}
	return string(l)
}
