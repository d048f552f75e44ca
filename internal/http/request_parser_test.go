package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rupee/internal/core"
)

func TestParsePeriod(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		query   url.Values
		want    *core.Period
		wantErr string
	}{
		{"defaults to now", url.Values{}, &core.Period{Year: 2026, Month: time.October}, ""},
		{"explicit month", url.Values{"year": {"2025"}, "month": {"3"}}, &core.Period{Year: 2025, Month: time.March}, ""},
		{"month only", url.Values{"month": {"12"}}, &core.Period{Year: 2026, Month: time.December}, ""},
		{"all entries", url.Values{"all": {"true"}, "month": {"99"}}, nil, ""},
		{"month out of range", url.Values{"month": {"13"}}, nil, "month"},
		{"year not a number", url.Values{"year": {"abc"}}, nil, "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.query, now)
			if tt.wantErr != "" {
				var ve *core.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantErr, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePosition(t *testing.T) {
	r := httptest.NewRequest(http.MethodPatch, "/api/entries/3", nil)
	r.SetPathValue("position", "3")
	pos, err := ParsePosition(r)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	r.SetPathValue("position", "-1")
	_, err = ParsePosition(r)
	assert.True(t, core.IsValidation(err))
}

func TestEntryRequest(t *testing.T) {
	today := core.NewDate(2026, 10, 18)
	tests := []struct {
		name    string
		body    string
		check   func(t *testing.T, e core.Entry)
		wantErr string
	}{
		{
			name: "quick add with aliases",
			body: `{"item":"Chai","amount":"₹1,250.50","category":"travel","paymentMethod":"Card","vendor":"Stall"}`,
			check: func(t *testing.T, e core.Entry) {
				assert.Equal(t, "Chai", e.Description)
				assert.EqualValues(t, 125050, e.Amount.Cents)
				assert.Equal(t, "Transportation", e.Category)
				assert.Equal(t, "Card", e.PaymentMethod)
				assert.Equal(t, "Stall", e.Notes)
				assert.Equal(t, today, e.Date)
				assert.Equal(t, "October 2026", e.PeriodLabel)
			},
		},
		{
			name: "numeric amount and explicit date",
			body: `{"description":"Rent","amount":15000,"date":"2026-09-01","category":"Housing"}`,
			check: func(t *testing.T, e core.Entry) {
				assert.EqualValues(t, 1500000, e.Amount.Cents)
				assert.Equal(t, "2026-09-01", e.Date.String())
				assert.Equal(t, core.DefaultPaymentMethod, e.PaymentMethod)
			},
		},
		{name: "missing amount", body: `{"description":"Rent"}`, wantErr: "amount"},
		{name: "zero amount", body: `{"description":"Rent","amount":"0"}`, wantErr: "amount"},
		{name: "bad date", body: `{"description":"Rent","amount":5,"date":"someday"}`, wantErr: "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req EntryRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			e, err := req.Entry(today)
			if tt.wantErr != "" {
				var ve *core.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantErr, ve.Field)
				return
			}
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestPatchRequest(t *testing.T) {
	var req PatchRequest
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2026-11-02","amount":"99.5","notes":" x\u0007 "}`), &req))
	p, err := req.Patch()
	require.NoError(t, err)

	require.NotNil(t, p.Date)
	assert.Equal(t, "November 2026", *p.PeriodLabel)
	assert.EqualValues(t, 9950, p.Amount.Cents)
	assert.Equal(t, "x", *p.Notes)
	assert.Nil(t, p.Description)

	req = PatchRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"-4"}`), &req))
	_, err = req.Patch()
	assert.True(t, core.IsValidation(err))
}

func TestDecodeJSON(t *testing.T) {
	var dst ConnectRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.ErrorIs(t, DecodeJSON(r, &dst), errEmptyBody)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ledger":"abc"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "abc", dst.Ledger)
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\tb", sanitizeInput("  a\tb\x00 "))
	assert.Equal(t, "line1\nline2", sanitizeInput("line1\nline2"))
}
