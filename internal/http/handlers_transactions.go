package http

import (
	"net/http"

	"konto/internal/core"
	"konto/internal/log"
	"konto/internal/middleware/trace"
)

type transactionsResponse struct {
	AccountID    string             `json:"accountId"`
	From         string             `json:"from"`
	To           string             `json:"to,omitempty"`
	Transactions []core.Transaction `json:"transactions"`
	// Categories maps transaction identity to category id for the listed
	// transactions that have one.
	Categories map[string]string `json:"categories"`
}

func (s *Server) transactionsReply(accountID string, dr DateRange, withTo bool, txs []core.Transaction) transactionsResponse {
	if txs == nil {
		txs = []core.Transaction{}
	}
	resp := transactionsResponse{
		AccountID:    accountID,
		From:         dr.From.Format(core.DateLayout),
		Transactions: txs,
		Categories:   make(map[string]string),
	}
	if withTo {
		resp.To = dr.To.Format(core.DateLayout)
	}
	for _, tx := range txs {
		id := core.StableIdentity(tx)
		if cat, ok := s.svc.Categories.Resolve(id); ok {
			resp.Categories[id] = cat.ID
		}
	}
	return resp
}

// handleListTransactions serves the manual list for manual accounts and
// fetches live for connected ones.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dr, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var txs []core.Transaction
	if core.IsManualAccountID(id) {
		txs, err = s.svc.Transactions.Manual(r.Context(), id, dr.From, dr.To)
	} else {
		if _, ok := s.svc.Accounts.Account(id); !ok {
			writeError(w, r, core.ErrNotFound)
			return
		}
		txs, err = s.svc.Transactions.Connected(r.Context(), id, dr.From, dr.To)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.transactionsReply(id, dr, true, txs))
}

// handleCachedTransactions serves the last fetched list of a connected
// account without calling the gateway.
func (s *Server) handleCachedTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dr, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.svc.Transactions.Cached(r.Context(), id, dr.From)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.transactionsReply(id, dr, false, txs))
}

func (s *Server) handleAddManualTransaction(w http.ResponseWriter, r *http.Request) {
	var e core.ManualEntry
	if err := decodeJSON(w, r, &e); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	tx, err := s.svc.Transactions.AddManual(r.Context(), r.PathValue("id"), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateManualTransaction(w http.ResponseWriter, r *http.Request) {
	var e core.ManualEntry
	if err := decodeJSON(w, r, &e); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	tx, err := s.svc.Transactions.UpdateManual(r.Context(), r.PathValue("id"), r.PathValue("txId"), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleDeleteManualTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Transactions.DeleteManual(r.Context(), r.PathValue("id"), r.PathValue("txId")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categorizeResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	// Summary is only set for inline runs.
	Summary *categorizeSummary `json:"summary,omitempty"`
}

type categorizeSummary struct {
	Eligible      int  `json:"eligible"`
	Batches       int  `json:"batches"`
	Categorized   int  `json:"categorized"`
	Created       int  `json:"created"`
	FailedBatches int  `json:"failedBatches"`
	NothingToDo   bool `json:"nothingToDo"`
}

// handleCategorize enqueues a categorization job when a broker is
// configured and otherwise runs it inline.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.svc.Accounts.Account(id); !ok {
		writeError(w, r, core.ErrNotFound)
		return
	}

	if s.svc.Queue != nil {
		requestID := trace.GetRequestID(r.Context())
		if err := s.svc.Queue.PublishCategorize(r.Context(), id, requestID); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to enqueue categorization",
				log.FieldAccountID, id, log.FieldError, err)
			writeMessage(w, http.StatusServiceUnavailable, "Categorization queue unavailable, please try again later")
			return
		}
		writeJSON(w, http.StatusAccepted, categorizeResponse{
			Status:    "queued",
			Message:   "Categorization started.",
			RequestID: requestID,
		})
		return
	}

	if s.svc.Engine == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Auto-categorization is not configured")
		return
	}
	txs, err := s.svc.Transactions.ForCategorization(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.svc.Engine.Run(r.Context(), txs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categorizeResponse{
		Status:  "done",
		Message: sum.Message(),
		Summary: &categorizeSummary{
			Eligible:      sum.Eligible,
			Batches:       sum.Batches,
			Categorized:   sum.Categorized,
			Created:       sum.Created,
			FailedBatches: len(sum.Failures),
			NothingToDo:   sum.NothingToDo,
		},
	})
}
