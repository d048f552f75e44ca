// Package stats derives dashboard figures from a snapshot of ledger
// entries. Nothing is cached: every call recomputes from the entries it is
// given, which keeps the figures consistent with whatever the store holds.
package stats

import (
	"sort"
	"strings"

	"rupee/internal/core"
)

const (
	DefaultRecentLimit = 10
	DefaultSeriesLimit = 30
)

// Options narrows and shapes a computation. Zero values select the
// defaults; a nil Period uses every entry.
type Options struct {
	Period      *core.Period
	RecentLimit int
	TopN        int
	SeriesLimit int
}

// Bucket is the per-day total used for the trend series.
type Bucket struct {
	Date    string
	Expense core.Money
	Income  core.Money
}

type DerivedStats struct {
	TotalIncome          core.Money
	TotalExpense         core.Money
	Balance              core.Money
	CategoryBreakdown    []core.CategoryAmount
	SubcategoryBreakdown []core.CategoryAmount
	TopCategories        []core.CategoryAmount
	Series               []Bucket
	RecentEntries        []core.Entry
	SpendingMessage      Message
	Insights             []Insight
}

// Compute runs a single pass over entries. Blank placeholder rows are
// skipped and amounts are taken by magnitude.
func Compute(entries []core.Entry, opts Options) DerivedStats {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = DefaultRecentLimit
	}
	if opts.SeriesLimit <= 0 {
		opts.SeriesLimit = DefaultSeriesLimit
	}

	var out DerivedStats
	byCategory := make(map[string]int64)
	bySub := make(map[string]int64)
	byDate := make(map[string]*Bucket)
	included := make([]core.Entry, 0, len(entries))

	for _, e := range entries {
		if e.IsBlank() {
			continue
		}
		if opts.Period != nil && !opts.Period.Contains(e.Date) {
			continue
		}
		included = append(included, e)

		cents := e.Amount.Cents
		if cents < 0 {
			cents = -cents
		}

		day := e.Date.String()
		b := byDate[day]
		if b == nil {
			b = &Bucket{Date: day}
			byDate[day] = b
		}

		if e.IsIncome() {
			out.TotalIncome.Cents += cents
			b.Income.Cents += cents
			continue
		}
		out.TotalExpense.Cents += cents
		b.Expense.Cents += cents

		cat := categoryLabel(e.Category)
		byCategory[cat] += cents
		if sub := strings.TrimSpace(e.Subcategory); sub != "" {
			bySub[cat+" / "+sub] += cents
		}
	}

	out.Balance = core.Money{Cents: out.TotalIncome.Cents - out.TotalExpense.Cents}
	out.CategoryBreakdown = ranked(byCategory, out.TotalExpense)
	out.SubcategoryBreakdown = ranked(bySub, out.TotalExpense)
	out.TopCategories = out.CategoryBreakdown
	if opts.TopN > 0 && len(out.TopCategories) > opts.TopN {
		out.TopCategories = out.TopCategories[:opts.TopN]
	}
	out.Series = series(byDate, opts.SeriesLimit)
	out.RecentEntries = recent(included, opts.RecentLimit)
	out.SpendingMessage = SpendingMessage(out.TotalExpense, out.TotalIncome)
	out.Insights = Insights(out)
	return out
}

// MonthExpense sums the expenses dated inside p.
func MonthExpense(entries []core.Entry, p core.Period) core.Money {
	var total int64
	for _, e := range entries {
		if e.IsIncome() || !p.Contains(e.Date) {
			continue
		}
		c := e.Amount.Cents
		if c < 0 {
			c = -c
		}
		total += c
	}
	return core.Money{Cents: total}
}

func categoryLabel(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return core.UncategorizedLabel
	}
	return c
}

// ranked orders totals by amount descending, then by name.
func ranked(totals map[string]int64, expense core.Money) []core.CategoryAmount {
	out := make([]core.CategoryAmount, 0, len(totals))
	for name, cents := range totals {
		ca := core.CategoryAmount{Name: name, Amount: core.Money{Cents: cents}}
		if expense.Cents > 0 {
			ca.Percent = float64(cents) * 100 / float64(expense.Cents)
		}
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// series keeps the most recent limit days in ascending order. Undated
// entries are bucketed under "" and sort first.
func series(byDate map[string]*Bucket, limit int) []Bucket {
	out := make([]Bucket, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// recent returns up to limit entries, newest date first. Entries on the
// same day keep the most recently inserted first.
func recent(entries []core.Entry, limit int) []core.Entry {
	out := append([]core.Entry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].Position > out[j].Position
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
