package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"konto/internal/core"
	"konto/internal/debts"
	"konto/internal/sheets"
)

type debtsResponse struct {
	Entities []core.DebtEntity `json:"entities"`
	Debts    []core.DebtItem   `json:"debts"`
	// Balances maps entity id to its net balance, positive when the entity
	// owes the user.
	Balances map[string]decimal.Decimal `json:"balances"`
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	l := s.svc.Debts
	resp := debtsResponse{
		Entities: l.Entities(),
		Debts:    l.Debts(),
		Balances: make(map[string]decimal.Decimal),
	}
	if resp.Entities == nil {
		resp.Entities = []core.DebtEntity{}
	}
	if resp.Debts == nil {
		resp.Debts = []core.DebtItem{}
	}
	for _, e := range resp.Entities {
		resp.Balances[e.ID] = l.NetBalance(e.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDebt(w http.ResponseWriter, r *http.Request) {
	var in debts.NewDebt
	if err := decodeJSON(w, r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	d, err := s.svc.Debts.AddDebt(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDebt(w http.ResponseWriter, r *http.Request) {
	var u debts.DebtUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	d, err := s.svc.Debts.UpdateDebt(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Debts.DeleteDebt(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string          `json:"name"`
		Type core.EntityType `json:"type"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	e, err := s.svc.Debts.AddEntity(r.Context(), body.Name, body.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleRenameEntity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	e, err := s.svc.Debts.RenameEntity(r.Context(), r.PathValue("id"), body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleDeleteEntity removes the entity together with its debts.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Debts.DeleteEntity(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNetWorthHistory(w http.ResponseWriter, r *http.Request) {
	if s.svc.History == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Snapshot history is not configured")
		return
	}
	points, err := s.svc.History.NetWorthHistory(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if points == nil {
		points = []sheets.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}
