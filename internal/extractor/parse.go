package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rupee/internal/core"
)

var (
	ErrNotAValidInput    = errors.New("input is not a bill or expense description")
	ErrUnclearInput      = errors.New("input is unclear")
	ErrMalformedResponse = errors.New("extractor response holds no JSON")
)

// Candidate is one expense proposed by the extractor. It has passed shape
// validation but has not been deduplicated or stored.
type Candidate struct {
	Date          core.Date
	Description   string
	Category      string
	Subcategory   string
	Amount        core.Money
	PaymentMethod string
	Notes         string
	Confidence    float64
}

// Entry converts the candidate into an entry ready for the ledger.
func (c Candidate) Entry() core.Entry {
	return core.Entry{
		Date:          c.Date,
		Description:   c.Description,
		Category:      c.Category,
		Subcategory:   c.Subcategory,
		Amount:        c.Amount,
		PaymentMethod: c.PaymentMethod,
		Notes:         c.Notes,
	}.WithDefaults()
}

// Parsed holds the candidates that passed validation and the reasons the
// others were rejected, indexed by their position in the response.
type Parsed struct {
	Candidates []Candidate
	Rejected   []*core.ValidationError
}

// Parse extracts candidates from the extractor's free text. The text may
// wrap the JSON in prose or a markdown fence; the first array or object
// that decodes is used. Candidates without a date are dated today.
func Parse(text string, today core.Date) (Parsed, error) {
	doc, err := firstJSON(text)
	if err != nil {
		return Parsed{}, err
	}

	var items []any
	switch v := doc.(type) {
	case map[string]any:
		if err := structuredError(v); err != nil {
			return Parsed{}, err
		}
		items = []any{v}
	case []any:
		items = v
	}

	// A response made only of error objects rejects the whole input.
	if len(items) > 0 {
		var first error
		allErrors := true
		for _, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				allErrors = false
				break
			}
			err := structuredError(obj)
			if err == nil {
				allErrors = false
				break
			}
			if first == nil {
				first = err
			}
		}
		if allErrors {
			return Parsed{}, first
		}
	}

	var out Parsed
	for i, it := range items {
		c, verr := candidateFrom(i, it, today)
		if verr != nil {
			out.Rejected = append(out.Rejected, verr)
			continue
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out, nil
}

// structuredError maps an {"error": code} object onto a sentinel. Objects
// that also carry an item are treated as candidates.
func structuredError(obj map[string]any) error {
	code, ok := obj["error"].(string)
	if !ok || code == "" {
		return nil
	}
	if _, hasItem := obj["item"]; hasItem {
		return nil
	}
	msg, _ := obj["message"].(string)
	var kind error
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "unclear_input", "unclear", "blurry":
		kind = ErrUnclearInput
	default:
		// not_a_valid_input, not_a_bill, "Invalid Document" and anything
		// unrecognised
		kind = ErrNotAValidInput
	}
	if msg == "" {
		return fmt.Errorf("%w (%s)", kind, code)
	}
	return fmt.Errorf("%w (%s): %s", kind, code, msg)
}

func candidateFrom(i int, it any, today core.Date) (Candidate, *core.ValidationError) {
	obj, ok := it.(map[string]any)
	if !ok {
		return Candidate{}, &core.ValidationError{Index: i, Field: "candidate", Reason: "must be an object"}
	}

	desc := firstString(obj, "item", "description")
	if desc == "" {
		return Candidate{}, &core.ValidationError{Index: i, Field: "item", Reason: "missing or empty"}
	}

	amount, reason := amountOf(obj["amount"])
	if reason != "" {
		return Candidate{}, &core.ValidationError{Index: i, Field: "amount", Reason: reason}
	}

	c := Candidate{
		Date:          today,
		Description:   desc,
		Category:      core.CanonicalCategory(firstString(obj, "category")),
		Subcategory:   firstString(obj, "subcategory"),
		Amount:        amount,
		PaymentMethod: firstString(obj, "paymentMethod", "payment_method"),
		Notes:         firstString(obj, "notes", "vendor"),
	}
	if s := firstString(obj, "date"); s != "" {
		d := core.ParseDate(s)
		if d.Validate() != nil {
			return Candidate{}, &core.ValidationError{Index: i, Field: "date", Reason: fmt.Sprintf("unrecognised date %q", s)}
		}
		c.Date = d
	}
	if n, ok := obj["confidence"].(json.Number); ok {
		c.Confidence, _ = n.Float64()
	}
	return c, nil
}

func amountOf(v any) (core.Money, string) {
	var s string
	switch a := v.(type) {
	case nil:
		return core.Money{}, "missing"
	case json.Number:
		s = a.String()
	case string:
		s = a
	default:
		return core.Money{}, "must be a number"
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, "must be a positive number"
	}
	return core.Money{Cents: cents}, ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstJSON decodes the first JSON array or object in text, skipping
// brackets in surrounding prose that do not start a valid document.
func firstJSON(text string) (any, error) {
	var lastErr error
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			lastErr = err
			continue
		}
		return doc, nil
	}
	if lastErr == nil {
		return nil, ErrMalformedResponse
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, lastErr)
}
