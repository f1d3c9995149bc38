package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/clock"
	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

const (
	defaultOpportunityWindow = time.Hour
	maxOpportunityWindow     = 30 * 24 * time.Hour
)

// OpportunityHistory is the durable history the dashboard reads: the
// Postgres store when enabled, otherwise the CSV file.
type OpportunityHistory interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]domain.RecordedOpportunity, error)
	Stats(ctx context.Context, since time.Time) (domain.OpportunityStats, error)
}

// OpportunityHandler serves recorded opportunities and their statistics.
type OpportunityHandler struct {
	history OpportunityHistory
	clock   clock.Clock
	logger  *slog.Logger
}

func NewOpportunityHandler(history OpportunityHistory, clk clock.Clock, logger *slog.Logger) *OpportunityHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &OpportunityHandler{history: history, clock: clk, logger: logHandler(logger, "opportunities")}
}

type listOpportunitiesResponse struct {
	Success       bool                         `json:"success"`
	Count         int                          `json:"count"`
	Opportunities []domain.RecordedOpportunity `json:"opportunities"`
}

// ListRecent returns opportunities recorded within the window, newest first.
// GET /api/opportunities?window=1h&limit=500
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	window, ok := parseWindow(r, "window", defaultOpportunityWindow, maxOpportunityWindow)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "invalid window")
		return
	}
	limit := parseLimit(r, 500, 5000)

	opps, err := h.history.ListSince(r.Context(), h.clock.Now().Add(-window), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeFailure(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.RecordedOpportunity{}
	}

	writeJSON(w, http.StatusOK, listOpportunitiesResponse{
		Success:       true,
		Count:         len(opps),
		Opportunities: opps,
	})
}

// Stats summarises the whole history, or only the window when one is given.
// GET /api/stats?window=24h
func (h *OpportunityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if r.URL.Query().Has("window") {
		window, ok := parseWindow(r, "window", 0, maxOpportunityWindow)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		since = h.clock.Now().Add(-window)
	}

	stats, err := h.history.Stats(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: opportunity stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
