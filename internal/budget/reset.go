package budget

import (
	"fmt"
	"time"

	"rupee/internal/core"
)

// ResetPolicy decides when a recorded band is cleared without the user
// asking for it.
type ResetPolicy interface {
	// ShouldReset returns true if state belongs to a period that has ended
	// as of now.
	ShouldReset(state core.BudgetState, now time.Time) bool
}

// ManualReset never clears a band; only an explicit Reset does.
type ManualReset struct{}

func (ManualReset) ShouldReset(core.BudgetState, time.Time) bool {
	return false
}

// MonthlyReset clears the band when the calendar month changes.
type MonthlyReset struct{}

func (MonthlyReset) ShouldReset(state core.BudgetState, now time.Time) bool {
	if state.PeriodKey == "" {
		return false
	}
	return state.PeriodKey != core.PeriodOf(now).Key()
}

const (
	PolicyManual  = "manual"
	PolicyMonthly = "monthly"
)

var resetPolicies = map[string]ResetPolicy{
	PolicyManual:  ManualReset{},
	PolicyMonthly: MonthlyReset{},
}

// GetResetPolicy returns the policy registered under name.
func GetResetPolicy(name string) (ResetPolicy, error) {
	p, ok := resetPolicies[name]
	if !ok {
		return nil, fmt.Errorf("unknown budget reset policy: %q", name)
	}
	return p, nil
}

// RegisterResetPolicy adds or replaces a named policy.
func RegisterResetPolicy(name string, p ResetPolicy) {
	resetPolicies[name] = p
}
