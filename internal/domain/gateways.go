package domain

// allowedGateways lists the gateways for which tax records are derived.
var allowedGateways = []string{
	"XYPAY", "SKPAY", "YTPAY", "OSPAY", "SIMPLYPAY", "VADERPAY", "PASSPAY",
	"MULTIPAY", "U9PAY", "BOMBAYPAY", "EPAY", "MOHAMMED AMEER ABBAS",
	"Test", "Test2", "BOPAY", "XCPAY",
}

// displayOverrides holds gateway codes whose console display name differs.
var displayOverrides = map[string]string{
	"MOHAMMED AMEER ABBAS": "Karnataka Bank 2",
}

var allowedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(allowedGateways))
	for _, g := range allowedGateways {
		m[g] = struct{}{}
	}
	return m
}()

// AllowedGateways returns a copy of the allow-list in its canonical order.
func AllowedGateways() []string {
	out := make([]string, len(allowedGateways))
	copy(out, allowedGateways)
	return out
}

// IsAllowedGateway reports whether code is on the allow-list. Matching is exact.
func IsAllowedGateway(code string) bool {
	_, ok := allowedSet[code]
	return ok
}

// GatewayDisplayName returns the combobox string the console expects for code.
// ok is false for codes outside the allow-list.
func GatewayDisplayName(code string) (name string, ok bool) {
	if !IsAllowedGateway(code) {
		return "", false
	}
	if override, found := displayOverrides[code]; found {
		return override, true
	}
	return code, true
}
