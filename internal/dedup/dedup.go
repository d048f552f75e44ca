// Package dedup decides whether an incoming entry duplicates one already in
// the ledger.
//
// Two entries are duplicates when their fingerprints are equal, or when
// they fall on the same date and their amounts differ by less than 5% of
// the candidate amount. The fuzzy rule catches the same bill scanned twice
// with a slightly different OCR total.
package dedup

import (
	"fmt"
	"strings"

	"rupee/internal/core"
)

// Fingerprint is the comparable identity of an entry's content.
type Fingerprint struct {
	Date        string
	AmountCents int64
	Description string
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s-%s-%s", f.Date, core.Money{Cents: f.AmountCents}, f.Description)
}

// Of computes the fingerprint of an entry. Descriptions are compared
// case-insensitively with surrounding and repeated whitespace ignored.
func Of(e core.Entry) Fingerprint {
	return Fingerprint{
		Date:        e.Date.String(),
		AmountCents: e.Amount.Cents,
		Description: Normalize(e.Description),
	}
}

// Normalize lower-cases s and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// IsDuplicateOf reports whether candidate duplicates existing.
func IsDuplicateOf(existing, candidate core.Entry) bool {
	a, b := Of(existing), Of(candidate)
	if a == b {
		return true
	}
	if a.Date != b.Date || b.AmountCents <= 0 {
		return false
	}
	diff := a.AmountCents - b.AmountCents
	if diff < 0 {
		diff = -diff
	}
	// diff/candidate < 0.05 without leaving integer arithmetic
	return diff*20 < b.AmountCents
}

// FindDuplicate returns the index of the first entry that candidate
// duplicates.
func FindDuplicate(entries []core.Entry, candidate core.Entry) (int, bool) {
	for i := range entries {
		if IsDuplicateOf(entries[i], candidate) {
			return i, true
		}
	}
	return -1, false
}
