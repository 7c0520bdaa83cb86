// Package monitor watches endpoint health and alerts operators when a chain
// loses all usable RPC endpoints.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/notify"
)

// HealthSource supplies the current per-endpoint breaker view. The rpc client
// implements it.
type HealthSource interface {
	Health() []domain.EndpointHealth
}

// HealthConfig tunes the health monitor.
type HealthConfig struct {
	// Interval is the polling cadence.
	Interval time.Duration
	// DegradedAfter is how long a chain must stay fully circuit-open before
	// the degraded alert fires. Short blips are absorbed by the breakers.
	DegradedAfter time.Duration
}

func (c *HealthConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = 30 * time.Second
	}
}

// Health polls the endpoint breaker states and raises a notification when
// every endpoint of a chain has been circuit-open for DegradedAfter. A
// recovery notice follows once any endpoint closes again.
type Health struct {
	cfg      HealthConfig
	source   HealthSource
	notifier *notify.Notifier
	logger   *slog.Logger

	degradedSince map[domain.ChainID]time.Time
	alerted       map[domain.ChainID]bool
}

// NewHealth creates the monitor. notifier may be nil; state transitions are
// always logged.
func NewHealth(cfg HealthConfig, source HealthSource, notifier *notify.Notifier, logger *slog.Logger) *Health {
	cfg.applyDefaults()
	return &Health{
		cfg:           cfg,
		source:        source,
		notifier:      notifier,
		logger:        logger.With(slog.String("component", "health_monitor")),
		degradedSince: make(map[domain.ChainID]time.Time),
		alerted:       make(map[domain.ChainID]bool),
	}
}

// Run polls until the context is cancelled.
func (h *Health) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.check(ctx, time.Now())
		}
	}
}

// check evaluates one health sample. Exposed to tests via a fixed clock.
func (h *Health) check(ctx context.Context, now time.Time) {
	open := make(map[domain.ChainID]int)
	total := make(map[domain.ChainID]int)
	for _, ep := range h.source.Health() {
		total[ep.Chain]++
		if ep.State == "open" {
			open[ep.Chain]++
		}
	}

	for chain, n := range total {
		if open[chain] == n {
			h.markDegraded(ctx, chain, open[chain], n, now)
		} else {
			h.markHealthy(ctx, chain)
		}
	}
}

func (h *Health) markDegraded(ctx context.Context, chain domain.ChainID, open, total int, now time.Time) {
	since, ok := h.degradedSince[chain]
	if !ok {
		h.degradedSince[chain] = now
		return
	}
	if h.alerted[chain] || now.Sub(since) < h.cfg.DegradedAfter {
		return
	}
	h.alerted[chain] = true

	h.logger.Error("chain degraded",
		slog.String("chain", string(chain)),
		slog.Int("open_endpoints", open),
		slog.Int("total_endpoints", total),
		slog.Duration("for", now.Sub(since)),
	)
	if h.notifier != nil {
		title, msg := notify.DegradedMessage(chain, open, total)
		if err := h.notifier.Notify(ctx, notify.EventDegraded, title, msg); err != nil {
			h.logger.Warn("degraded alert failed", slog.String("error", err.Error()))
		}
	}
}

func (h *Health) markHealthy(ctx context.Context, chain domain.ChainID) {
	wasAlerted := h.alerted[chain]
	delete(h.degradedSince, chain)
	delete(h.alerted, chain)
	if !wasAlerted {
		return
	}

	h.logger.Info("chain recovered", slog.String("chain", string(chain)))
	if h.notifier != nil {
		title, msg := notify.RecoveredMessage(chain)
		if err := h.notifier.Notify(ctx, notify.EventDegraded, title, msg); err != nil {
			h.logger.Warn("recovery notice failed", slog.String("error", err.Error()))
		}
	}
}
