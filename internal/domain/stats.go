package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyStats is the per-strategy breakdown inside a stats snapshot.
type StrategyStats struct {
	Produced int64 `json:"produced"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// EndpointHealth is a read-only view of one endpoint's breaker and latency
// state, exposed for the reporting surface.
type EndpointHealth struct {
	Chain        ChainID       `json:"chain"`
	URL          string        `json:"url"`
	State        string        `json:"state"` // closed | open | half_open
	Failures     int           `json:"consecutive_failures"`
	Successes    int64         `json:"successes"`
	LastLatency  time.Duration `json:"last_latency_ns"`
	LastUsedAt   time.Time     `json:"last_used_at"`
	LastOpenedAt time.Time     `json:"last_opened_at,omitempty"`
}

// StatsSnapshot is a point-in-time copy of the coordinator's process-lifetime
// counters. It is safe to retain and serialize; the coordinator owns the
// mutable originals.
type StatsSnapshot struct {
	StartedAt          time.Time                  `json:"started_at"`
	TotalOpportunities int64                      `json:"total_opportunities"`
	Accepted           int64                      `json:"accepted"`
	Executed           int64                      `json:"executed"`
	Failed             int64                      `json:"failed"`
	PnLUSD             decimal.Decimal            `json:"pnl_usd"`
	Rejections         map[RejectReason]int64     `json:"rejections"`
	Strategies         map[string]StrategyStats   `json:"strategies"`
	Dispatch           map[CapitalSource]int64    `json:"dispatch"`
	Endpoints          []EndpointHealth           `json:"endpoints,omitempty"`
}

// StatsSource is implemented by the coordinator and consumed by the reporting
// server, the session archiver, and the health monitor.
type StatsSource interface {
	Snapshot() StatsSnapshot
}
