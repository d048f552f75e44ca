package core

import (
	"errors"
	"strings"
	"time"
)

const (
	// IncomeCategory is the only category counted as income; every other
	// category, including an empty one, is an expense.
	IncomeCategory = "Income"

	// UncategorizedLabel groups expenses with an empty category.
	UncategorizedLabel = "Uncategorized"

	DefaultPaymentMethod = "UPI"

	DateLayout   = "2006-01-02"
	PeriodLayout = "January 2006"
)

const (
	StatusLocal     EntryStatus = "local"
	StatusConfirmed EntryStatus = "confirmed"
	StatusFailed    EntryStatus = "failed"
)

type (
	// EntryStatus tracks whether an entry's remote write has been acknowledged.
	EntryStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Principal is the authenticated user a session acts for.
	Principal struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		AvatarURL   string `json:"avatar_url,omitempty"`
	}

	// Ledger identifies the remote spreadsheet holding a principal's entries.
	Ledger struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	// Entry is one row of the ledger. Position is the entry's index in the
	// cache. After a refresh it maps to sheet row Position+2.
	Entry struct {
		Position      int
		Date          Date
		Description   string
		Category      string
		Subcategory   string
		Amount        Money
		PaymentMethod string
		Notes         string
		PeriodLabel   string
		Status        EntryStatus
	}

	// Patch carries the fields to overwrite on an existing entry. Nil fields
	// are left untouched.
	Patch struct {
		Date          *Date
		Description   *string
		Category      *string
		Subcategory   *string
		Amount        *Money
		PaymentMethod *string
		Notes         *string
		PeriodLabel   *string
	}

	// BudgetState is the persisted alert state for one principal.
	BudgetState struct {
		Ceiling         Money
		LastCrossedBand int
		PeriodKey       string
		UpdatedAt       time.Time
	}
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
)

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2/1/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts the formats a spreadsheet or an extractor typically
// produce. Unparseable input yields the zero Date.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t)
		}
	}
	return Date{}
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// PeriodLabel renders the calendar month, e.g. "October 2026".
func (d Date) PeriodLabel() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(PeriodLayout)
}

// PeriodKey renders the calendar month as YYYY-MM.
func (d Date) PeriodKey() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsIncome reports whether the entry counts toward income.
func (e Entry) IsIncome() bool {
	return e.Category == IncomeCategory
}

// IsBlank reports whether the entry came from an empty sheet row.
func (e Entry) IsBlank() bool {
	return e.Date.IsZero() && strings.TrimSpace(e.Description) == "" &&
		e.Amount.Cents == 0 && strings.TrimSpace(e.Category) == ""
}

// WithDefaults fills the fields the ledger always carries.
func (e Entry) WithDefaults() Entry {
	if strings.TrimSpace(e.PaymentMethod) == "" {
		e.PaymentMethod = DefaultPaymentMethod
	}
	if strings.TrimSpace(e.PeriodLabel) == "" {
		e.PeriodLabel = e.Date.PeriodLabel()
	}
	if e.Amount.Cents < 0 {
		e.Amount.Cents = -e.Amount.Cents
	}
	return e
}

// Validate checks an entry before it is accepted into the ledger.
func (e Entry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Index: -1, Field: "date", Reason: err.Error()}
	}
	if strings.TrimSpace(e.Description) == "" {
		return &ValidationError{Index: -1, Field: "item", Reason: ErrEmptyDescription.Error()}
	}
	if len(e.Description) > 200 {
		return &ValidationError{Index: -1, Field: "item", Reason: "description too long (max 200 characters)"}
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Index: -1, Field: "amount", Reason: err.Error()}
	}
	return nil
}

// Apply returns a copy of e with the non-nil patch fields applied.
func (p Patch) Apply(e Entry) Entry {
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Subcategory != nil {
		e.Subcategory = *p.Subcategory
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.PaymentMethod != nil {
		e.PaymentMethod = *p.PaymentMethod
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.PeriodLabel != nil {
		e.PeriodLabel = *p.PeriodLabel
	}
	return e
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.Description == nil && p.Category == nil &&
		p.Subcategory == nil && p.Amount == nil && p.PaymentMethod == nil &&
		p.Notes == nil && p.PeriodLabel == nil
}
