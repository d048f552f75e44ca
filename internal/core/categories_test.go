package core

import "testing"

func TestCanonicalCategory(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"food", "Food"},
		{" Shopping ", "Shopping"},
		{"Health", "Medical"},
		{"bills", "Bills & Utilities"},
		{"Pets", "Pets"},
		{"", ""},
		{"income", IncomeCategory},
	}
	for _, c := range cases {
		if got := CanonicalCategory(c.in); got != c.want {
			t.Errorf("CanonicalCategory(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsKnownCategory(t *testing.T) {
	if !IsKnownCategory("Trip/Entry Fees") {
		t.Error("Trip/Entry Fees should be known")
	}
	if IsKnownCategory("food") {
		t.Error("lookup is exact")
	}
}
