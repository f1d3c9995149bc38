package handler

import (
	"net/http"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	clock   clock.Clock
	started time.Time
}

// NewHealthHandler creates a HealthHandler; uptime counts from now.
func NewHealthHandler(clk clock.Clock) *HealthHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &HealthHandler{clock: clk, started: clk.Now()}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339),
		"uptime":    now.Sub(h.started).Truncate(time.Second).String(),
	})
}
