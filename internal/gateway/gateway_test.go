package gateway

import "testing"

func TestNormalizeCategory(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "Uncategorized"},
		{"   ", "Uncategorized"},
		{"Honey", "Honey"},
		{" Honey ", " Honey "},
	}
	for _, c := range cases {
		if got := NormalizeCategory(c.in); got != c.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
