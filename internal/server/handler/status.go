package handler

import (
	"net/http"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/monitor"
)

// MonitorView is the read side of the monitor loop.
type MonitorView interface {
	Status() monitor.Status
	Snapshot() (domain.CycleResult, bool)
}

// StatusHandler serves the loop state and the latest cycle.
type StatusHandler struct {
	monitor MonitorView
}

func NewStatusHandler(m MonitorView) *StatusHandler {
	return &StatusHandler{monitor: m}
}

// GetStatus responds with loop state and last-cycle statistics.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// GetSnapshot responds with the latest CycleResult.
// GET /api/snapshot
func (h *StatusHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	res, ok := h.monitor.Snapshot()
	if !ok {
		writeFailure(w, http.StatusNotFound, "No data available yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cycle": res})
}
