package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"konto/internal/core"
	"konto/internal/gateway"
	"konto/internal/log"
	"konto/internal/storage"
)

// errorBody is the JSON shape of every error reply.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var ge *gateway.Error
	switch {
	case errors.As(err, &ge):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrNotManual),
		errors.Is(err, core.ErrInvalidDebtType),
		errors.Is(err, core.ErrInvalidEntity),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidPlan):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is what the caller gets to read. Internal errors are never
// echoed; validation errors and the upstream bank message are.
func userMessage(err error) string {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		if ge.Message != "" {
			return "Bank gateway error: " + ge.Message
		}
		return fmt.Sprintf("Bank gateway error (status %d)", ge.Status)
	}

	switch statusFor(err) {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusUnprocessableEntity:
		return validationMessage(err)
	case http.StatusGatewayTimeout:
		return "The bank gateway did not answer in time"
	}

	var se *storage.Error
	if errors.As(err, &se) {
		return "Could not access saved data, please try again"
	}
	return "Internal error"
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyName):
		return "Name must not be empty"
	case errors.Is(err, core.ErrInvalidAmount):
		return "Invalid amount"
	case errors.Is(err, core.ErrUnknownCategory):
		return "Unknown category"
	case errors.Is(err, core.ErrInvalidCategory):
		return "Invalid account category"
	case errors.Is(err, core.ErrNotManual):
		return "Only manual accounts can be changed this way"
	case errors.Is(err, core.ErrInvalidDebtType):
		return "Invalid debt type"
	case errors.Is(err, core.ErrInvalidEntity):
		return "Invalid entity"
	case errors.Is(err, core.ErrInvalidDate):
		return "Invalid date, expected YYYY-MM-DD"
	case errors.Is(err, core.ErrInvalidPlan):
		return "Invalid investment plan"
	}
	return "Invalid request"
}

// writeError logs err with the request logger and writes the mapped reply.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err, log.FieldPath, r.URL.Path)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", log.FieldError, err, log.FieldPath, r.URL.Path)
	}
	writeMessage(w, status, userMessage(err))
}

// writeMessage writes an error reply with a fixed message.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}
