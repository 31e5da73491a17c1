package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"konto/internal/core"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// defaultRange is how far back transaction listings go without a from date.
const defaultRange = 90 * 24 * time.Hour

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON document from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// DateRange is an inclusive calendar range from query parameters.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange reads from/to (YYYY-MM-DD) from query. to defaults to
// today and from to ninety days before to.
func ParseDateRange(query url.Values, now time.Time) (DateRange, error) {
	today, _ := time.Parse(core.DateLayout, now.UTC().Format(core.DateLayout))
	dr := DateRange{To: today}

	if v := strings.TrimSpace(query.Get("to")); v != "" {
		t, err := time.Parse(core.DateLayout, v)
		if err != nil {
			return DateRange{}, core.ErrInvalidDate
		}
		dr.To = t
	}
	dr.From = dr.To.Add(-defaultRange)
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		t, err := time.Parse(core.DateLayout, v)
		if err != nil {
			return DateRange{}, core.ErrInvalidDate
		}
		dr.From = t
	}
	if dr.From.After(dr.To) {
		return DateRange{}, core.ErrInvalidDate
	}
	return dr, nil
}

// writeDecodeError answers a malformed body with 400.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	if errors.Is(err, errBadRequest) {
		writeMessage(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	writeError(w, r, err)
}
