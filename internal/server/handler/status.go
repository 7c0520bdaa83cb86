package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the engine mode and strategy roster for the dashboard.
type StatusHandler struct {
	Mode       string
	Strategies []string
	StartedAt  time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, strategies []string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{Mode: mode, Strategies: strategies, StartedAt: startedAt}
}

// GetStatus responds with the current engine mode, enabled strategies and
// uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"strategies":     h.Strategies,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
