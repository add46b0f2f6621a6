package domain

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DialerPhoneNumber is the lookup key used everywhere in the sync engine.
// Two numbers are equal when their normalized forms are equal; the raw input
// is kept only for display.
type DialerPhoneNumber struct {
	RawInput    string `json:"raw_input"`
	Normalized  string `json:"normalized"`
	CountryISO  string `json:"country_iso,omitempty"`
	CountryCode int32  `json:"country_code,omitempty"`
	Valid       bool   `json:"valid"`
}

// NewDialerPhoneNumber parses raw in the context of countryISO.
//
// Valid numbers normalize to E.164. Anything else normalizes to its digits
// (keeping a leading '+') with the post-dial portion dropped; input without
// digits, such as SIP addresses, normalizes to its lowercased form.
func NewDialerPhoneNumber(raw, countryISO string) DialerPhoneNumber {
	trimmed := strings.TrimSpace(raw)
	n := DialerPhoneNumber{
		RawInput:   raw,
		CountryISO: strings.ToUpper(countryISO),
	}
	if trimmed == "" {
		return n
	}

	dialable := stripPostDial(trimmed)
	if parsed, err := phonenumbers.Parse(dialable, n.CountryISO); err == nil && phonenumbers.IsValidNumber(parsed) {
		n.Normalized = phonenumbers.Format(parsed, phonenumbers.E164)
		n.CountryCode = parsed.GetCountryCode()
		if region := phonenumbers.GetRegionCodeForNumber(parsed); region != "" {
			n.CountryISO = region
		}
		n.Valid = true
		return n
	}

	digits := phonenumbers.NormalizeDigitsOnly(dialable)
	switch {
	case digits == "":
		n.Normalized = strings.ToLower(trimmed)
	case strings.HasPrefix(dialable, "+"):
		n.Normalized = "+" + digits
	default:
		n.Normalized = digits
	}
	return n
}

// Key is the map key for the number. Empty numbers have an empty key.
func (n DialerPhoneNumber) Key() string {
	return n.Normalized
}

// IsEmpty reports whether the number carries no usable value.
func (n DialerPhoneNumber) IsEmpty() bool {
	return n.Normalized == ""
}

// Equal compares by normalized form only.
func (n DialerPhoneNumber) Equal(other DialerPhoneNumber) bool {
	return n.Normalized == other.Normalized
}

// Formatted returns the human-readable form: national format for numbers in
// the caller's own country, international otherwise, the raw input when the
// number is not valid.
func (n DialerPhoneNumber) Formatted(userCountryISO string) string {
	if !n.Valid {
		return n.RawInput
	}
	parsed, err := phonenumbers.Parse(n.Normalized, "")
	if err != nil {
		return n.RawInput
	}
	if strings.EqualFold(n.CountryISO, userCountryISO) {
		return phonenumbers.Format(parsed, phonenumbers.NATIONAL)
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
}

func stripPostDial(s string) string {
	if i := strings.IndexAny(s, ",;"); i >= 0 {
		return s[:i]
	}
	return s
}
