package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/rebalancer/internal/broker"
)

// BreakerHandler serves circuit-breaker state and the governance reset.
type BreakerHandler struct {
	state  *broker.BreakerState
	logger *slog.Logger
}

// NewBreakerHandler creates a BreakerHandler over the shared breaker state.
func NewBreakerHandler(state *broker.BreakerState, logger *slog.Logger) *BreakerHandler {
	return &BreakerHandler{
		state:  state,
		logger: logger.With(slog.String("handler", "breaker")),
	}
}

// GetState responds with the current breaker state.
// GET /api/breaker
func (h *BreakerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"disabled": h.state.Disabled(),
	}
	if reason, at := h.state.Reason(); reason != "" {
		resp["reason"] = reason
		resp["tripped_at"] = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reset re-enables trading after a trip. This is the governance override;
// the API key gate in front of the server is what authorizes it.
// POST /api/breaker/reset
func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	wasDisabled := h.state.Disabled()
	h.state.Reset()

	h.logger.InfoContext(r.Context(), "breaker reset",
		slog.Bool("was_disabled", wasDisabled),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"disabled":     false,
		"was_disabled": wasDisabled,
	})
}
