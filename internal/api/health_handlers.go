package api

import (
	"net/http"
	"time"
)

// handleHealth reports liveness and live-session count (spec §6 GET
// /api/health), grounded on the teacher's health_handlers.go shape.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"active_sessions": s.Sessions.Count(),
	})
}

// handleInitialize is a no-op readiness probe clients call once before
// issuing inspections (spec §6 POST /api/initialize).
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "initialized"})
}
