// Package http exposes the ledger service as a JSON API.
//
// This file builds JSON responses and maps domain errors onto status
// codes so every handler reports failures the same way.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"rupee/internal/core"
	"rupee/internal/extractor"
	"rupee/internal/ledger"
	"rupee/internal/locator"
	"rupee/internal/log"
	"rupee/internal/services"
	"rupee/internal/session"
)

// ResponseBuilder provides a fluent API for writing JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the response. A nil body writes the status alone.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Ledger any    `json:"ledger,omitempty"`
}

// ErrorResponse maps err onto a status code and a stable error code.
func ErrorResponse(err error) *ResponseBuilder {
	status, code := classify(err)
	body := ErrorBody{Error: err.Error(), Code: code}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
		if ve.Index >= 0 {
			idx := ve.Index
			body.Index = &idx
		}
	}
	b := NewResponse().Status(status).JSON(body)
	if status == http.StatusTooManyRequests {
		b.Header("Retry-After", "60")
	}
	return b
}

func classify(err error) (int, string) {
	switch {
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, errEmptyBody):
		return http.StatusBadRequest, "empty_body"
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, core.ErrAuthExpired):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "login_in_progress"
	case errors.Is(err, ledger.ErrNoLedger):
		return http.StatusConflict, "no_ledger"
	case errors.Is(err, locator.ErrLedgerExists):
		return http.StatusConflict, "ledger_exists"
	case errors.Is(err, locator.ErrInvalidID), errors.Is(err, locator.ErrInvalidFormat):
		return http.StatusUnprocessableEntity, "invalid_ledger"
	case errors.Is(err, extractor.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, extractor.ErrNotAValidInput):
		return http.StatusUnprocessableEntity, "not_an_expense"
	case errors.Is(err, extractor.ErrUnclearInput):
		return http.StatusUnprocessableEntity, "unclear_input"
	case errors.Is(err, extractor.ErrMalformedResponse), errors.Is(err, extractor.ErrEmptyInput):
		return http.StatusUnprocessableEntity, "unreadable_input"
	case errors.Is(err, extractor.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, services.ErrExtractorDisabled), errors.Is(err, core.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, core.ErrRemoteRejected):
		return http.StatusBadGateway, "remote_rejected"
	}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntax) || errors.As(err, &typeErr) {
		return http.StatusBadRequest, "bad_json"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	b := ErrorResponse(err)
	if b.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	b.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).JSON(v).Write(w)
}
