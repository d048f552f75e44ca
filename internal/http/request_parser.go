// Package http exposes the ledger service as a JSON API.
//
// This file holds the request decoding shared by the handlers: period
// query parameters, JSON bodies and the lenient entry payload accepted
// from quick-add forms and pasted extractor output.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rupee/internal/core"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// ParsePeriod reads year and month from the query. A missing value falls
// back to now; a malformed or out-of-range one is a validation error.
// all=true asks for every entry and returns nil.
func ParsePeriod(query url.Values, now time.Time) (*core.Period, error) {
	if v := strings.TrimSpace(query.Get("all")); v == "true" || v == "1" {
		return nil, nil
	}
	p := core.PeriodOf(now)
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return nil, &core.ValidationError{Index: -1, Field: "year", Reason: "not a number"}
		}
		p.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return nil, &core.ValidationError{Index: -1, Field: "month", Reason: "not a number"}
		}
		p.Month = time.Month(m)
	}
	if !p.Valid() {
		return nil, &core.ValidationError{Index: -1, Field: "month", Reason: "must be between 1 and 12"}
	}
	return &p, nil
}

// ParsePosition reads the {position} path value.
func ParsePosition(r *http.Request) (int, error) {
	pos, err := strconv.Atoi(r.PathValue("position"))
	if err != nil || pos < 0 {
		return 0, &core.ValidationError{Index: -1, Field: "position", Reason: "must be a non-negative integer"}
	}
	return pos, nil
}

// DecodeJSON reads a single JSON value from the body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// Amount accepts a JSON number or a string such as "₹1,250.50".
type Amount struct {
	Set   bool
	Value core.Money
	Raw   string
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	a.Set = true
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	a.Raw = s
	if cents, err := core.ParseDecimalToCents(s); err == nil {
		a.Value = core.Money{Cents: cents}
	}
	return nil
}

// EntryRequest is the body of POST /api/entries. Both snake and camel case
// spellings of the payment method are accepted, and item is an alias for
// description.
type EntryRequest struct {
	Date          string `json:"date"`
	Description   string `json:"description"`
	Item          string `json:"item"`
	Category      string `json:"category"`
	Subcategory   string `json:"subcategory"`
	Amount        Amount `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	PaymentCamel  string `json:"paymentMethod"`
	Notes         string `json:"notes"`
	Vendor        string `json:"vendor"`
}

// Entry converts the request. A missing date means today.
func (req EntryRequest) Entry(today core.Date) (core.Entry, error) {
	date := today
	if v := strings.TrimSpace(req.Date); v != "" {
		date = core.ParseDate(v)
		if date.IsZero() {
			return core.Entry{}, &core.ValidationError{Index: -1, Field: "date", Reason: core.ErrInvalidDate.Error()}
		}
	}
	if err := req.Amount.check(); err != nil {
		return core.Entry{}, err
	}
	e := core.Entry{
		Date:          date,
		Description:   sanitizeInput(firstOf(req.Item, req.Description)),
		Category:      core.CanonicalCategory(sanitizeInput(req.Category)),
		Subcategory:   sanitizeInput(req.Subcategory),
		Amount:        req.Amount.Value,
		PaymentMethod: sanitizeInput(firstOf(req.PaymentMethod, req.PaymentCamel)),
		Notes:         sanitizeInput(firstOf(req.Notes, req.Vendor)),
	}
	return e.WithDefaults(), nil
}

// PatchRequest is the body of PATCH /api/entries/{position}. Absent fields
// are left unchanged.
type PatchRequest struct {
	Date          *string `json:"date"`
	Description   *string `json:"description"`
	Category      *string `json:"category"`
	Subcategory   *string `json:"subcategory"`
	Amount        Amount  `json:"amount"`
	PaymentMethod *string `json:"payment_method"`
	Notes         *string `json:"notes"`
}

func (req PatchRequest) Patch() (core.Patch, error) {
	var p core.Patch
	if req.Date != nil {
		d := core.ParseDate(*req.Date)
		if d.IsZero() {
			return core.Patch{}, &core.ValidationError{Index: -1, Field: "date", Reason: core.ErrInvalidDate.Error()}
		}
		label := d.PeriodLabel()
		p.Date, p.PeriodLabel = &d, &label
	}
	if req.Amount.Set {
		if err := req.Amount.check(); err != nil {
			return core.Patch{}, err
		}
		m := req.Amount.Value
		p.Amount = &m
	}
	p.Description = sanitized(req.Description)
	if req.Category != nil {
		c := core.CanonicalCategory(sanitizeInput(*req.Category))
		p.Category = &c
	}
	p.Subcategory = sanitized(req.Subcategory)
	p.PaymentMethod = sanitized(req.PaymentMethod)
	p.Notes = sanitized(req.Notes)
	return p, nil
}

type ConnectRequest struct {
	Ledger string `json:"ledger"`
}

type BudgetRequest struct {
	Ceiling Amount `json:"ceiling"`
}

func (req BudgetRequest) Money() (core.Money, error) {
	if req.Ceiling.check() != nil {
		return core.Money{}, &core.ValidationError{Index: -1, Field: "ceiling", Reason: "must be a positive amount"}
	}
	return req.Ceiling.Value, nil
}

func (a Amount) check() error {
	if !a.Set || a.Value.Cents <= 0 {
		return &core.ValidationError{Index: -1, Field: "amount", Reason: core.ErrInvalidAmount.Error()}
	}
	return nil
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func sanitized(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
