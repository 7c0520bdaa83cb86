package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// OpportunityHandler serves the opportunity ledger.
type OpportunityHandler struct {
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler over the ledger store.
func NewOpportunityHandler(store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{store: store, logger: logger}
}

// ListRecent responds with the most recently discovered opportunities.
// GET /api/opportunities/recent?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "opportunity.list_recent")
	opts := parseListOpts(r)

	opps, err := h.store.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		log.ErrorContext(r.Context(), "ledger query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}

// CountByStrategy responds with per-strategy opportunity counts over the last
// 24 hours.
// GET /api/opportunities/by-strategy
func (h *OpportunityHandler) CountByStrategy(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "opportunity.count_by_strategy")

	counts, err := h.store.CountByStrategy(r.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		log.ErrorContext(r.Context(), "ledger query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count opportunities")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"by_strategy": counts})
}
