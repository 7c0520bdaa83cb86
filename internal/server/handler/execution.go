package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// ExecutionHandler serves the execution ledger and realized PnL.
type ExecutionHandler struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler over the ledger store.
func NewExecutionHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger}
}

// ListRecent responds with the most recent execution results.
// GET /api/executions/recent?limit=50
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "execution.list_recent")
	opts := parseListOpts(r)

	results, err := h.store.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		log.ErrorContext(r.Context(), "ledger query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": results,
		"count":      len(results),
	})
}

// GetPnL responds with the realized profit over the last 24 hours.
// GET /api/pnl
func (h *ExecutionHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "execution.pnl")

	since := time.Now().Add(-24 * time.Hour)
	pnl, err := h.store.SumPnL(r.Context(), since)
	if err != nil {
		log.ErrorContext(r.Context(), "ledger query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to sum pnl")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pnl_usd": pnl,
		"since":   since.UTC().Format(time.RFC3339),
	})
}
