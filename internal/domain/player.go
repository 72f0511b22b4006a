package domain

// NoEmail is the placeholder used in player files when no email is known.
const NoEmail = "-"

// PlayerRecord is one line of a player provisioning file.
type PlayerRecord struct {
	Seq       int
	Phone     string
	Email     string
	Affiliate string
	// Line is the 1-based line number in the source file.
	Line int
}

// HasEmail reports whether the Email field should be filled.
func (p PlayerRecord) HasEmail() bool {
	return p.Email != "" && p.Email != NoEmail
}
