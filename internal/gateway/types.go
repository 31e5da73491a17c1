package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"konto/internal/core"
)

// Error is a non-2xx answer from the proxy. Body is the upstream payload
// verbatim; Message is its "error" field when the body was JSON.
type Error struct {
	Status  int
	Body    string
	Message string
}

func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: string(body)}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Error
	}
	return e
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway status %d", e.Status)
}

// AsError unwraps a gateway error from err.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Balance types preferred as the account's main balance, in order of
// appearance in the response.
var preferredBalanceTypes = map[string]bool{
	"CLAV": true,
	"XPCD": true,
}

// MainBalance picks the first CLAV or XPCD entry, else the first entry.
// ok is false for an empty list.
func MainBalance(balances []Balance) (Balance, bool) {
	if len(balances) == 0 {
		return Balance{}, false
	}
	for _, b := range balances {
		if preferredBalanceTypes[b.BalanceType] {
			return b, true
		}
	}
	return balances[0], true
}

// transactionList decodes either a flat array or a {booked, pending} object
// into one flat slice, booked entries first.
type transactionList []core.Transaction

func (l *transactionList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	switch data[0] {
	case '[':
		var flat []core.Transaction
		if err := json.Unmarshal(data, &flat); err != nil {
			return err
		}
		*l = flat
	case '{':
		var split struct {
			Booked  []core.Transaction `json:"booked"`
			Pending []core.Transaction `json:"pending"`
		}
		if err := json.Unmarshal(data, &split); err != nil {
			return err
		}
		out := make([]core.Transaction, 0, len(split.Booked)+len(split.Pending))
		out = append(out, split.Booked...)
		out = append(out, split.Pending...)
		*l = out
	default:
		return fmt.Errorf("unexpected transactions shape starting with %q", data[0])
	}
	return nil
}
