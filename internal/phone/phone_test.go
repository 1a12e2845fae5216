package phone

import "testing"

func TestNormalizeStripsFormattingAndCountryCode(t *testing.T) {
	n := NewNormalizer("52", 10)
	cases := []struct {
		name     string
		raw      string
		digits   string
		national bool
	}{
		{"bare national", "5512345678", "5512345678", true},
		{"formatted national", "(55) 1234-5678", "5512345678", true},
		{"plus country code", "+52 55 1234 5678", "5512345678", true},
		{"country code no plus", "525512345678", "5512345678", true},
		{"whatsapp style", "whatsapp:+525512345678", "5512345678", true},
		{"too short", "12345", "12345", false},
		{"eleven digits keeps all", "15512345678", "15512345678", false},
		{"foreign country code", "+1 555 123 4567", "15551234567", false},
		{"empty", "", "", false},
		{"letters only", "no-phone", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Normalize(tc.raw)
			if got.Digits != tc.digits {
				t.Fatalf("digits = %q, want %q", got.Digits, tc.digits)
			}
			if got.National != tc.national {
				t.Fatalf("national = %v, want %v", got.National, tc.national)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer("", 0)
	for _, raw := range []string{"+52 (55) 1234-5678", "5512345678", "525512345678", "abc"} {
		once := n.Normalize(raw)
		twice := n.Normalize(once.Digits)
		if once.Digits != twice.Digits {
			t.Fatalf("normalize(%q) not idempotent: %q then %q", raw, once.Digits, twice.Digits)
		}
	}
}

func TestEqualMatchesAcrossFormats(t *testing.T) {
	n := NewNormalizer("52", 10)
	if !n.Equal("+525512345678", "(55) 1234 5678") {
		t.Fatal("expected formats of the same number to compare equal")
	}
	if n.Equal("5512345678", "5512345679") {
		t.Fatal("expected distinct numbers to compare unequal")
	}
}
