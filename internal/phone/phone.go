// Package phone validates and canonicalizes North American phone numbers.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("invalid phone number")

type Number struct {
	// Raw is the value as supplied by the caller.
	Raw    string
	Digits string
	E164   string
}

// National returns the 10-digit national significant number.
func (n Number) National() string {
	return strings.TrimPrefix(n.E164, "+1")
}

// Normalize strips every non-digit from raw and maps the remainder to +1XXXXXXXXXX.
//
// An 11-digit number whose first digit is not 1, and a 12-digit number that starts
// with a doubled country code ("11"), are coerced onto +1 using the last ten digits
// instead of being rejected.
func Normalize(raw string) (Number, error) {
	digits := stripNonDigits(raw)

	var national string
	switch {
	case len(digits) == 10:
		national = digits
	case len(digits) == 11:
		national = digits[1:]
	case len(digits) == 12 && strings.HasPrefix(digits, "11"):
		national = digits[2:]
	default:
		return Number{}, fmt.Errorf("%w: %q has %d digits", ErrInvalid, raw, len(digits))
	}

	return Number{
		Raw:    raw,
		Digits: digits,
		E164:   "+1" + national,
	}, nil
}

func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
