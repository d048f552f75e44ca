package budget

import (
	"context"
	"fmt"
	"strings"

	"rupee/internal/core"
	"rupee/internal/sheets"
)

// Mirror keeps the monthly budget in the ledger's Settings tab so it
// follows the ledger to other devices.
type Mirror struct {
	gw sheets.Gateway
}

func NewMirror(gw sheets.Gateway) *Mirror {
	return &Mirror{gw: gw}
}

// Load reads the budget from the Settings tab. ok is false when the tab or
// the key is missing or the value does not parse.
func (m *Mirror) Load(ctx context.Context, ledgerID string) (ceiling core.Money, ok bool, err error) {
	rows, err := m.gw.ReadRange(ctx, ledgerID, sheets.SettingsRange)
	if err != nil {
		return core.Money{}, false, fmt.Errorf("read settings: %w", err)
	}
	for _, row := range rows {
		if len(row) < 2 || !strings.EqualFold(strings.TrimSpace(row[0]), sheets.BudgetKey) {
			continue
		}
		cents, perr := core.ParseDecimalToCents(row[1])
		if perr != nil || cents < 0 {
			return core.Money{}, false, nil
		}
		return core.Money{Cents: cents}, true, nil
	}
	return core.Money{}, false, nil
}

// Save writes the budget, creating the Settings tab first when the gateway
// supports it.
func (m *Mirror) Save(ctx context.Context, ledgerID string, ceiling core.Money) error {
	if ta, ok := m.gw.(sheets.TabAdder); ok {
		if err := ta.EnsureTab(ctx, ledgerID, sheets.SettingsTab); err != nil {
			return fmt.Errorf("ensure settings tab: %w", err)
		}
	}
	rows := [][]string{
		{"Key", "Value"},
		{sheets.BudgetKey, ceiling.String()},
	}
	if err := m.gw.WriteRange(ctx, ledgerID, sheets.SettingsRange, rows); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
