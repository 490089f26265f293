package domain

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  User@Example.COM ", "user@example.com"},
		{"plain@example.com", "plain@example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" +14155550101 "); got != "+14155550101" {
		t.Errorf("NormalizePhone() = %q, want trimmed E.164", got)
	}
}
