package http

import (
	"net/http"
)

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.api.Budget(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetOf(b))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req BudgetRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ceiling, err := req.Money()
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.api.SetBudget(r.Context(), ceiling)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetOf(b))
}

func (s *Server) handleResetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.api.ResetBudget(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgetOf(b))
}
