package http

import (
	"context"
	"errors"
	"net/http"

	"rupee/internal/locator"
	"rupee/internal/log"
)

type ledgerResponse struct {
	Resolution locator.Resolution `json:"resolution"`
	Session    any                `json:"session"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.api.Overview())
}

// handleLogin runs the identity provider flow. The flow outlives a client
// disconnect but not the login timeout.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.loginTTL)
	defer cancel()

	ov, err := s.api.Login(ctx)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin, log.FieldError, err)
		if ov.Principal == nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.api.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.api.Overview())
}

// handleCreateLedger answers 201 for a new ledger. When the principal
// already owns one it is attached anyway and reported with 409.
func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	res, err := s.api.CreateLedger(r.Context())
	switch {
	case errors.Is(err, locator.ErrLedgerExists):
		body := ErrorBody{Error: err.Error(), Code: "ledger_exists", Ledger: res}
		writeJSON(w, http.StatusConflict, body)
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ledgerResponse{Resolution: res, Session: s.api.Overview()})
}

func (s *Server) handleConnectLedger(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.api.ConnectLedger(r.Context(), sanitizeInput(req.Ledger))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse{Resolution: res, Session: s.api.Overview()})
}
