package http

import (
	"net/http"

	"rupee/internal/core"
	"rupee/internal/ledger"
	"rupee/internal/stats"
)

type addEntryResponse struct {
	Result ledger.AppendResult `json:"result"`
	Entry  *entryView          `json:"entry,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.api.Entries()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesOf(entries))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	entries, err := s.api.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesOf(entries))
}

// handleAddEntry answers 201 when the entry is accepted, even if the
// remote write failed and the entry is held for retry. A duplicate is
// reported with 200 and accepted=false.
func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := req.Entry(core.DateOf(s.now()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.api.AddEntry(r.Context(), e)
	if err != nil && !res.Accepted {
		writeError(w, r, err)
		return
	}
	body := addEntryResponse{Result: res}
	if err != nil {
		body.Error = err.Error()
	}
	if !res.Accepted {
		writeJSON(w, http.StatusOK, body)
		return
	}
	// the store fills in payment method and period the same way
	stored := e.WithDefaults()
	stored.Position, stored.Status = res.Position, res.Status
	v := entryOf(stored)
	body.Entry = &v
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	pos, err := ParsePosition(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req PatchRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := req.Patch()
	if err != nil {
		writeError(w, r, err)
		return
	}

	ok, err := s.api.UpdateEntry(r.Context(), pos, patch)
	if !ok {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "no entry at that position", Code: "not_found"})
		return
	}
	entries, lerr := s.api.Entries()
	if lerr != nil || pos >= len(entries) {
		writeJSON(w, http.StatusOK, map[string]any{"updated": true})
		return
	}
	body := map[string]any{"updated": true, "entry": entryOf(entries[pos])}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	n, err := s.api.RetryFailed(r.Context())
	if err != nil && n == 0 {
		writeError(w, r, err)
		return
	}
	body := map[string]any{"retried": n}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ds, err := s.api.Stats(stats.Options{Period: period})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsOf(period, ds))
}
