package http

import (
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports whether the initial load has finished and which
// optional features are wired.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"accounts":       "ok",
		"categorization": "not_configured",
		"queue":          "not_configured",
		"history":        "not_configured",
	}
	if s.svc.Accounts != nil && s.svc.Accounts.IsRefreshing() {
		checks["accounts"] = "refreshing"
	}
	if s.svc.Engine != nil {
		checks["categorization"] = "ok"
	}
	if s.svc.Queue != nil {
		checks["queue"] = "ok"
	}
	if s.svc.History != nil {
		checks["history"] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !s.ready.Load() {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
