package sheets

import (
	"testing"

	"rupee/internal/core"
)

func TestRowRangeRoundTrip(t *testing.T) {
	for _, pos := range []int{0, 1, 41} {
		rng := RowRange(pos)
		got, err := PositionOf(rng)
		if err != nil {
			t.Fatalf("PositionOf(%q): %v", rng, err)
		}
		if got != pos {
			t.Errorf("PositionOf(%q) = %d, want %d", rng, got, pos)
		}
	}
	if RowRange(0) != "A2:H2" {
		t.Fatalf("RowRange(0) = %q", RowRange(0))
	}
	if _, err := PositionOf("A1:H1"); err == nil {
		t.Fatalf("header row must not map to a position")
	}
	if _, err := PositionOf("A2:H3"); err == nil {
		t.Fatalf("multi-row range must be rejected")
	}
	if pos, err := PositionOf("Sheet1!A5:H5"); err != nil || pos != 3 {
		t.Fatalf("sheet-qualified range: %d %v", pos, err)
	}
}

func TestHeaderMatches(t *testing.T) {
	cases := []struct {
		row  []string
		want bool
	}{
		{Header, true},
		{[]string{"date", "item", "category", "subcategory", "amount", "payment method", "notes", "month"}, true},
		{append(append([]string{}, Header...), "", " "), true},
		{Header[:7], false},
		{[]string{"Date", "Item", "Category", "Subcategory", "Amount", "Payment Method", "Notes"}, false},
		{[]string{"Month", "Day", "Description", "Amount"}, false},
		{nil, false},
	}
	for i, tc := range cases {
		if got := HeaderMatches(tc.row); got != tc.want {
			t.Errorf("case %d: HeaderMatches(%v) = %v, want %v", i, tc.row, got, tc.want)
		}
	}
}

func TestEntryRowCodec(t *testing.T) {
	e := core.Entry{
		Date:          core.NewDate(2026, 10, 18),
		Description:   "Petrol",
		Category:      "Transportation",
		Subcategory:   "Petrol",
		Amount:        core.Money{Cents: 150050},
		PaymentMethod: "UPI",
		Notes:         "full tank",
		PeriodLabel:   "October 2026",
	}
	row := EntryToRow(e)
	want := []string{"2026-10-18", "Petrol", "Transportation", "Petrol", "1500.5", "UPI", "full tank", "October 2026"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("column %d = %q, want %q", i, row[i], want[i])
		}
	}

	back := RowToEntry(3, row)
	e.Position = 3
	e.Status = core.StatusConfirmed
	if back != e {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", back, e)
	}
}

func TestRowToEntryTolerance(t *testing.T) {
	e := RowToEntry(0, []string{"2026-10-01", "Tea", "Food", "", "not a number"})
	if e.Amount.Cents != 0 {
		t.Fatalf("malformed amount should be zero, got %d", e.Amount.Cents)
	}
	if e.PaymentMethod != "" || e.PeriodLabel != "" {
		t.Fatalf("missing cells should be empty: %+v", e)
	}
}

func TestRowsToEntriesKeepsPositions(t *testing.T) {
	rows := [][]string{
		{"2026-10-01", "Tea", "Food", "", "20"},
		{},
		{"2026-10-02", "Bus", "Transportation", "", "30"},
		{"", " "},
	}
	entries := RowsToEntries(rows)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[1].IsBlank() {
		t.Fatalf("middle row should be blank")
	}
	if entries[2].Position != 2 || entries[2].Description != "Bus" {
		t.Fatalf("unexpected third entry %+v", entries[2])
	}
}
