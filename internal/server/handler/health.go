package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode string
}

// NewHealthHandler creates a HealthHandler reporting the given run mode.
func NewHealthHandler(mode string) *HealthHandler {
	return &HealthHandler{mode: mode}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
