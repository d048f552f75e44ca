package stats

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"rupee/internal/core"
)

// Message tones, used by front-ends to pick a colour.
const (
	ToneDanger  = "danger"
	ToneWarning = "warning"
	ToneNeutral = "neutral"
	ToneSuccess = "success"
)

type Message struct {
	Text string `json:"text"`
	Tone string `json:"tone"`
}

// Insight is a short observation about the period.
type Insight struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"message"`
	Detail string `json:"detail"`
	Tone   string `json:"tone"`
}

var inr = message.NewPrinter(language.MustParse("en-IN"))

// FormatRupees renders whole rupees with Indian digit grouping.
func FormatRupees(m core.Money) string {
	return "₹" + inr.Sprintf("%d", int64(math.Round(m.Rupees())))
}

// SpendingMessage grades expense against income. Without income the
// ratio is taken against one rupee.
func SpendingMessage(expense, income core.Money) Message {
	denom := income.Rupees()
	if denom <= 0 {
		denom = 1
	}
	ratio := expense.Rupees() / denom
	switch {
	case ratio > 0.9:
		return Message{Text: "Spending is critical! Time to review.", Tone: ToneDanger}
	case ratio > 0.7:
		return Message{Text: "High spending detected this period", Tone: ToneWarning}
	case ratio > 0.5:
		return Message{Text: "Balanced spending - keep it up!", Tone: ToneNeutral}
	case ratio > 0.3:
		return Message{Text: "Great control on spending!", Tone: ToneSuccess}
	default:
		return Message{Text: "Excellent savings rate!", Tone: ToneSuccess}
	}
}

// Insights derives the top category, savings and daily average cards.
func Insights(s DerivedStats) []Insight {
	var out []Insight

	if len(s.CategoryBreakdown) > 0 {
		top := s.CategoryBreakdown[0]
		out = append(out, Insight{
			ID:     "top-category",
			Title:  "Top Spending",
			Text:   fmt.Sprintf("%s is your biggest spend at %s", top.Name, FormatRupees(top.Amount)),
			Detail: fmt.Sprintf("%.0f%% of total expenses", top.Percent),
			Tone:   ToneNeutral,
		})
	}

	if s.TotalIncome.Cents > 0 {
		rate := math.Round(float64(s.Balance.Cents) * 100 / float64(s.TotalIncome.Cents))
		switch {
		case rate > 20:
			out = append(out, Insight{
				ID:     "savings",
				Title:  "Great Savings!",
				Text:   fmt.Sprintf("You're saving %.0f%% of your income", rate),
				Detail: "Keep up the momentum!",
				Tone:   ToneSuccess,
			})
		case rate > 0:
			out = append(out, Insight{
				ID:     "savings",
				Title:  "Moderate Savings",
				Text:   fmt.Sprintf("You're saving %.0f%% of your income", rate),
				Detail: "Try to aim for 20%+ for financial stability",
				Tone:   ToneWarning,
			})
		default:
			out = append(out, Insight{
				ID:     "overspend",
				Title:  "Over Budget",
				Text:   "You've spent more than you earned!",
				Detail: "Time to check some expenses",
				Tone:   ToneDanger,
			})
		}
	}

	if days := len(s.Series); days > 5 {
		avg := core.Money{Cents: s.TotalExpense.Cents / int64(days)}
		out = append(out, Insight{
			ID:     "velocity",
			Title:  "Daily Average",
			Text:   fmt.Sprintf("You spend %s per day", FormatRupees(avg)),
			Detail: fmt.Sprintf("Based on %d days of data", days),
			Tone:   ToneNeutral,
		})
	}
	return out
}
