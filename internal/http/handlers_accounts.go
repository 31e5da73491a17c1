package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"konto/internal/accounts"
	"konto/internal/core"
)

type accountsResponse struct {
	Accounts   []core.UnifiedAccount `json:"accounts"`
	Totals     core.Totals           `json:"totals"`
	Refreshing bool                  `json:"refreshing"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	a := s.svc.Accounts
	writeJSON(w, http.StatusOK, accountsResponse{
		Accounts:   a.Accounts(),
		Totals:     a.Totals(),
		Refreshing: a.IsRefreshing(),
	})
}

// handleRefresh runs a refresh with the loading indicator and returns its
// report. Per-account failures are part of a 200 reply.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Accounts.Refresh(r.Context(), true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.svc.Accounts.Account(r.PathValue("id"))
	if !ok {
		writeError(w, r, core.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleSetAccountCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category core.AccountCategory `json:"category"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.svc.Accounts.SetAccountCategory(r.Context(), id, body.Category); err != nil {
		writeError(w, r, err)
		return
	}
	acc, _ := s.svc.Accounts.Account(id)
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleListManualAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Accounts.ManualAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []core.ManualAccount{}
	}
	writeJSON(w, http.StatusOK, list)
}

type manualAccountResponse struct {
	Account core.ManualAccount      `json:"account"`
	Refresh *accounts.RefreshReport `json:"refresh,omitempty"`
}

func (s *Server) handleAddManualAccount(w http.ResponseWriter, r *http.Request) {
	var in core.ManualAccount
	if err := decodeJSON(w, r, &in); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	created, report, err := s.svc.Accounts.AddManualAccount(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, manualAccountResponse{Account: created, Refresh: &report})
}

func (s *Server) handleUpdateManualAccount(w http.ResponseWriter, r *http.Request) {
	var u accounts.ManualAccountUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	updated, err := s.svc.Accounts.UpdateManualAccount(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, manualAccountResponse{Account: updated})
}

func (s *Server) handleDeleteManualAccount(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Accounts.DeleteManualAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type cashBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleGetCash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cashBody{Amount: s.svc.Accounts.CashBalance()})
}

func (s *Server) handleSetCash(w http.ResponseWriter, r *http.Request) {
	var body cashBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if err := s.svc.Accounts.SetCashBalance(r.Context(), body.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountsResponse{
		Accounts:   s.svc.Accounts.Accounts(),
		Totals:     s.svc.Accounts.Totals(),
		Refreshing: s.svc.Accounts.IsRefreshing(),
	})
}
