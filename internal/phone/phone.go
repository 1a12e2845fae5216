// Package phone canonicalizes raw phone numbers into the single comparable
// form used as the card identity key.
package phone

import "strings"

const (
	defaultCountryCode    = "52"
	defaultNationalLength = 10
)

// Canonical is the normalized form of a raw phone number. Two raw strings
// denote the same identity iff their Digits are equal. National is false when
// the digit string does not fit the locale's national-number shape; rejecting
// such numbers is a caller policy, not a normalizer concern.
type Canonical struct {
	Digits   string
	National bool
}

// Normalizer strips formatting and the locale country-code prefix.
type Normalizer struct {
	countryCode    string
	nationalLength int
}

// NewNormalizer builds a normalizer for one locale. Empty arguments fall back
// to the Mexican defaults ("52", 10 digits).
func NewNormalizer(countryCode string, nationalLength int) *Normalizer {
	code := strings.TrimSpace(countryCode)
	if code == "" {
		code = defaultCountryCode
	}
	if nationalLength <= 0 {
		nationalLength = defaultNationalLength
	}
	return &Normalizer{countryCode: code, nationalLength: nationalLength}
}

// Normalize reduces raw to digits and strips the country-code prefix when the
// result is exactly prefix+national digits long. Pure and idempotent.
func (n *Normalizer) Normalize(raw string) Canonical {
	digits := keepDigits(raw)
	prefixed := len(n.countryCode) + n.nationalLength
	if len(digits) == prefixed && strings.HasPrefix(digits, n.countryCode) {
		digits = digits[len(n.countryCode):]
	}
	return Canonical{
		Digits:   digits,
		National: len(digits) == n.nationalLength,
	}
}

// Equal reports whether two raw phone numbers share one canonical identity.
func (n *Normalizer) Equal(a, b string) bool {
	return n.Normalize(a).Digits == n.Normalize(b).Digits
}

func keepDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
