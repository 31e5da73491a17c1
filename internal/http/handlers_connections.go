package http

import (
	"net/http"
	"strings"

	"konto/internal/core"
)

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		writeMessage(w, http.StatusBadRequest, "Query parameter country is required")
		return
	}
	banks, err := s.svc.Connections.Banks(r.Context(), country, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if banks == nil {
		banks = []core.Bank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.Connections.Sessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []core.LinkedSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleStartConnection returns the bank's authorization URL. The caller
// redirects the user there and posts the returned code to the callback.
func (s *Server) handleStartConnection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bank    string `json:"bank"`
		Country string `json:"country"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	body.Bank = strings.TrimSpace(body.Bank)
	body.Country = strings.ToUpper(strings.TrimSpace(body.Country))
	if body.Bank == "" || body.Country == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "Bank and country are required")
		return
	}
	auth, err := s.svc.Connections.Start(r.Context(), body.Bank, body.Country)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (s *Server) handleCompleteConnection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		writeMessage(w, http.StatusUnprocessableEntity, "Authorization code is required")
		return
	}
	session, err := s.svc.Connections.Complete(r.Context(), body.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleRemoveConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Connections.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
