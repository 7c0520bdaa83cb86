package handler

import (
	"net/http"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// StatsHandler exposes the coordinator's session counters.
type StatsHandler struct {
	source domain.StatsSource
}

// NewStatsHandler creates a StatsHandler over the given source.
func NewStatsHandler(source domain.StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

// GetStats responds with the full session snapshot: totals, per-strategy
// counters, rejection breakdown, capital-source dispatch and endpoint health.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Snapshot())
}

// GetEndpoints responds with just the per-endpoint breaker view.
// GET /api/endpoints
func (h *StatsHandler) GetEndpoints(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": snap.Endpoints,
	})
}
