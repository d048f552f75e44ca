package http

import (
	"rupee/internal/core"
	"rupee/internal/ledger"
	"rupee/internal/services"
	"rupee/internal/stats"
)

// Amounts are sent both as integer paise and as a display string.
type moneyView struct {
	Cents     int64  `json:"cents"`
	Value     string `json:"value"`
	Formatted string `json:"formatted"`
}

func money(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Value: m.String(), Formatted: stats.FormatRupees(m)}
}

type entryView struct {
	Position      int              `json:"position"`
	Date          string           `json:"date"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	Subcategory   string           `json:"subcategory,omitempty"`
	Amount        moneyView        `json:"amount"`
	PaymentMethod string           `json:"payment_method"`
	Notes         string           `json:"notes,omitempty"`
	Period        string           `json:"period"`
	Status        core.EntryStatus `json:"status"`
	Income        bool             `json:"income"`
}

func entryOf(e core.Entry) entryView {
	return entryView{
		Position:      e.Position,
		Date:          e.Date.String(),
		Description:   e.Description,
		Category:      e.Category,
		Subcategory:   e.Subcategory,
		Amount:        money(e.Amount),
		PaymentMethod: e.PaymentMethod,
		Notes:         e.Notes,
		Period:        e.PeriodLabel,
		Status:        e.Status,
		Income:        e.IsIncome(),
	}
}

func entriesOf(entries []core.Entry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryOf(e))
	}
	return out
}

type categoryView struct {
	Name    string    `json:"name"`
	Amount  moneyView `json:"amount"`
	Percent float64   `json:"percent"`
}

func categoriesOf(cs []core.CategoryAmount) []categoryView {
	out := make([]categoryView, 0, len(cs))
	for _, c := range cs {
		out = append(out, categoryView{Name: c.Name, Amount: money(c.Amount), Percent: c.Percent})
	}
	return out
}

type bucketView struct {
	Date    string `json:"date"`
	Expense int64  `json:"expense_cents"`
	Income  int64  `json:"income_cents"`
}

type statsView struct {
	Period          string          `json:"period,omitempty"`
	TotalIncome     moneyView       `json:"total_income"`
	TotalExpense    moneyView       `json:"total_expense"`
	Balance         moneyView       `json:"balance"`
	Categories      []categoryView  `json:"categories"`
	Subcategories   []categoryView  `json:"subcategories"`
	TopCategories   []categoryView  `json:"top_categories"`
	Series          []bucketView    `json:"series"`
	Recent          []entryView     `json:"recent"`
	SpendingMessage stats.Message   `json:"spending_message"`
	Insights        []stats.Insight `json:"insights"`
}

func statsOf(p *core.Period, s stats.DerivedStats) statsView {
	v := statsView{
		TotalIncome:     money(s.TotalIncome),
		TotalExpense:    money(s.TotalExpense),
		Balance:         money(s.Balance),
		Categories:      categoriesOf(s.CategoryBreakdown),
		Subcategories:   categoriesOf(s.SubcategoryBreakdown),
		TopCategories:   categoriesOf(s.TopCategories),
		Series:          make([]bucketView, 0, len(s.Series)),
		Recent:          entriesOf(s.RecentEntries),
		SpendingMessage: s.SpendingMessage,
		Insights:        s.Insights,
	}
	if p != nil {
		v.Period = p.Key()
	}
	for _, b := range s.Series {
		v.Series = append(v.Series, bucketView{Date: b.Date, Expense: b.Expense.Cents, Income: b.Income.Cents})
	}
	if v.Insights == nil {
		v.Insights = []stats.Insight{}
	}
	return v
}

type budgetView struct {
	Ceiling         moneyView `json:"ceiling"`
	Spent           moneyView `json:"spent"`
	Percent         float64   `json:"percent"`
	LastCrossedBand int       `json:"last_crossed_band"`
	Period          string    `json:"period"`
}

func budgetOf(b services.BudgetView) budgetView {
	return budgetView{
		Ceiling:         money(b.Ceiling),
		Spent:           money(b.Spent),
		Percent:         b.Percent,
		LastCrossedBand: b.LastCrossedBand,
		Period:          b.PeriodKey,
	}
}

type candidateView struct {
	Index       int                  `json:"index"`
	Entry       entryView            `json:"entry"`
	Confidence  float64              `json:"confidence,omitempty"`
	Duplicate   bool                 `json:"duplicate"`
	DuplicateOf *int                 `json:"duplicate_of,omitempty"`
	Result      *ledger.AppendResult `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type rejectedView struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type extractView struct {
	Preview    bool            `json:"preview"`
	Candidates []candidateView `json:"candidates"`
	Rejected   []rejectedView  `json:"rejected"`
}

func extractOf(preview bool, r services.ExtractReport) extractView {
	v := extractView{
		Preview:    preview,
		Candidates: make([]candidateView, 0, len(r.Outcomes)),
		Rejected:   make([]rejectedView, 0, len(r.Rejected)),
	}
	for _, o := range r.Outcomes {
		c := candidateView{
			Index:      o.Index,
			Entry:      entryOf(o.Candidate.Entry()),
			Confidence: o.Candidate.Confidence,
			Duplicate:  o.Duplicate,
			Result:     o.Result,
		}
		if o.Duplicate {
			pos := o.DuplicateOf
			c.DuplicateOf = &pos
		}
		if o.Result != nil {
			c.Entry.Position = o.Result.Position
			c.Entry.Status = o.Result.Status
		}
		if o.Err != nil {
			c.Error = o.Err.Error()
		}
		v.Candidates = append(v.Candidates, c)
	}
	for _, ve := range r.Rejected {
		v.Rejected = append(v.Rejected, rejectedView{Index: ve.Index, Field: ve.Field, Reason: ve.Reason})
	}
	return v
}
