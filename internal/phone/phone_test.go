package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"dashed ten digits", "213-555-1212", "+12135551212"},
		{"formatted ten digits", "(213) 555 1212", "+12135551212"},
		{"eleven digits with country code", "1-213-555-1212", "+12135551212"},
		{"already e164", "+12135551212", "+12135551212"},
		{"eleven digits wrong country digit", "92135551212", "+12135551212"},
		{"doubled country code", "112135551212", "+12135551212"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Normalize(tc.raw)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tc.raw, err)
			}
			if n.E164 != tc.want {
				t.Fatalf("Normalize(%q).E164 = %q, want %q", tc.raw, n.E164, tc.want)
			}
			if n.Raw != tc.raw {
				t.Fatalf("expected Raw to keep caller value %q, got %q", tc.raw, n.Raw)
			}
			if n.National() != "2135551212" {
				t.Fatalf("unexpected national form %q", n.National())
			}
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "5551212", "555-1212", "12345678901234", "abc", "222135551212"} {
		_, err := Normalize(raw)
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected ErrInvalid for %q, got %v", raw, err)
		}
		if Valid(raw) {
			t.Fatalf("Valid(%q) = true, want false", raw)
		}
	}
}
