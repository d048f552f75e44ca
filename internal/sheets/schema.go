package sheets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rupee/internal/core"
)

// Header is the fixed column layout of a ledger, columns A through H.
var Header = []string{"Date", "Item", "Category", "Subcategory", "Amount", "Payment Method", "Notes", "Month"}

const (
	HeaderRange = "A1:H1"
	DataRange   = "A2:H"
	AppendRange = "A:H"

	// FirstDataRow is the sheet row holding the entry at position 0.
	FirstDataRow = 2

	SettingsTab   = "Settings"
	SettingsRange = "Settings!A1:B2"
	BudgetKey     = "monthlyBudget"
)

// RowRange returns the A1 range of the entry at position.
func RowRange(position int) string {
	row := position + FirstDataRow
	return fmt.Sprintf("A%d:H%d", row, row)
}

var rowRangeRE = regexp.MustCompile(`^(?:[^!]+!)?A(\d+):H(\d+)$`)

// PositionOf parses a single-row range produced by RowRange.
func PositionOf(rng string) (int, error) {
	m := rowRangeRE.FindStringSubmatch(strings.TrimSpace(rng))
	if m == nil || m[1] != m[2] {
		return 0, fmt.Errorf("not a single-row range: %q", rng)
	}
	row, err := strconv.Atoi(m[1])
	if err != nil || row < FirstDataRow {
		return 0, fmt.Errorf("not a data row: %q", rng)
	}
	return row - FirstDataRow, nil
}

// HeaderMatches reports whether row is the ledger header. Trailing empty
// cells are ignored and names compare case-insensitively.
func HeaderMatches(row []string) bool {
	trimmed := row
	for len(trimmed) > 0 && strings.TrimSpace(trimmed[len(trimmed)-1]) == "" {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) != len(Header) {
		return false
	}
	for i, h := range Header {
		if !strings.EqualFold(strings.TrimSpace(trimmed[i]), h) {
			return false
		}
	}
	return true
}

// EntryToRow encodes an entry in column order.
func EntryToRow(e core.Entry) []string {
	return []string{
		e.Date.String(),
		e.Description,
		e.Category,
		e.Subcategory,
		e.Amount.String(),
		e.PaymentMethod,
		e.Notes,
		e.PeriodLabel,
	}
}

// RowToEntry decodes a stored row. Missing cells are empty and malformed
// amounts become zero.
func RowToEntry(position int, row []string) core.Entry {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	return core.Entry{
		Position:      position,
		Date:          core.ParseDate(cell(0)),
		Description:   cell(1),
		Category:      cell(2),
		Subcategory:   cell(3),
		Amount:        core.ParseAmount(cell(4)),
		PaymentMethod: cell(5),
		Notes:         cell(6),
		PeriodLabel:   cell(7),
		Status:        core.StatusConfirmed,
	}
}

// RowsToEntries decodes data rows. Trailing blank rows are dropped; blank
// rows in the middle are kept so that position+2 stays the sheet row.
func RowsToEntries(rows [][]string) []core.Entry {
	for len(rows) > 0 && isBlank(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	out := make([]core.Entry, len(rows))
	for i, row := range rows {
		out[i] = RowToEntry(i, row)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
