// Package budget raises an alert each time monthly spending crosses a
// higher share of the budget ceiling.
//
// Bands only move forward. Once a band has fired it stays recorded until
// the reset policy or the user clears it, so re-evaluating the same spend
// never alerts twice. Lowering the ceiling does not un-fire a band either:
// a band already passed under the old ceiling is not announced again for
// the new one.
package budget

import (
	"fmt"

	"rupee/internal/core"
	"rupee/internal/stats"
)

// Bands are the alert thresholds, in percent of the ceiling.
var Bands = []int{25, 50, 75, 90, 100}

// DefaultCeiling is the monthly budget used until the user sets one.
var DefaultCeiling = core.Money{Cents: 11000 * 100}

// Result is the outcome of an evaluation. Notification is nil unless a new
// band was crossed.
type Result struct {
	NewBand      int
	Notification *string
}

// Fired reports whether the evaluation crossed a new band.
func (r Result) Fired() bool {
	return r.Notification != nil
}

// Evaluate compares spend against the state's ceiling. It is pure.
func Evaluate(spent core.Money, state core.BudgetState) Result {
	res := Result{NewBand: state.LastCrossedBand}
	if state.Ceiling.Cents <= 0 {
		return res
	}
	band := bandFor(spent, state.Ceiling)
	if band <= state.LastCrossedBand {
		return res
	}
	msg := Message(band, spent, state.Ceiling)
	res.NewBand = band
	res.Notification = &msg
	return res
}

// bandFor returns the highest band at or below spent/ceiling, or 0.
func bandFor(spent, ceiling core.Money) int {
	// spent*100 >= band*ceiling keeps the comparison in integer cents
	found := 0
	for _, b := range Bands {
		if spent.Cents*100 >= int64(b)*ceiling.Cents {
			found = b
		}
	}
	return found
}

// Message is the alert text for band.
func Message(band int, spent, ceiling core.Money) string {
	if band >= 100 {
		return fmt.Sprintf("Budget exceeded: you have spent %s of your %s monthly budget.",
			stats.FormatRupees(spent), stats.FormatRupees(ceiling))
	}
	return fmt.Sprintf("Budget alert: you have used %d%% of your monthly budget (%s of %s).",
		band, stats.FormatRupees(spent), stats.FormatRupees(ceiling))
}
