package coordinator

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Stats holds the process-lifetime counters. All mutation goes through its
// methods; external readers get point-in-time copies via Snapshot.
type Stats struct {
	mu         sync.Mutex
	startedAt  time.Time
	total      int64
	accepted   int64
	executed   int64
	failed     int64
	pnlUSD     decimal.Decimal
	rejections map[domain.RejectReason]int64
	strategies map[string]domain.StrategyStats
	dispatch   map[domain.CapitalSource]int64
}

// NewStats initializes zeroed counters anchored at now.
func NewStats() *Stats {
	return &Stats{
		startedAt:  time.Now().UTC(),
		rejections: make(map[domain.RejectReason]int64),
		strategies: make(map[string]domain.StrategyStats),
		dispatch:   make(map[domain.CapitalSource]int64),
	}
}

// Produced counts an opportunity arriving from a strategy.
func (s *Stats) Produced(strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	st := s.strategies[strategy]
	st.Produced++
	s.strategies[strategy] = st
}

// Rejected counts a dropped opportunity with its reason.
func (s *Stats) Rejected(strategy string, reason domain.RejectReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[reason]++
	st := s.strategies[strategy]
	st.Rejected++
	s.strategies[strategy] = st
}

// Accepted counts a forwarded opportunity and its dispatch decision.
func (s *Stats) Accepted(strategy string, source domain.CapitalSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted++
	s.dispatch[source]++
	st := s.strategies[strategy]
	st.Accepted++
	s.strategies[strategy] = st
}

// Executed records an execution outcome and its realized PnL.
func (s *Stats) Executed(res domain.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Succeeded() {
		s.executed++
		s.pnlUSD = s.pnlUSD.Add(res.ProfitUSD)
	} else {
		s.failed++
	}
}

// Snapshot returns a deep copy safe to retain and serialize.
func (s *Stats) Snapshot() domain.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.StatsSnapshot{
		StartedAt:          s.startedAt,
		TotalOpportunities: s.total,
		Accepted:           s.accepted,
		Executed:           s.executed,
		Failed:             s.failed,
		PnLUSD:             s.pnlUSD,
		Rejections:         make(map[domain.RejectReason]int64, len(s.rejections)),
		Strategies:         make(map[string]domain.StrategyStats, len(s.strategies)),
		Dispatch:           make(map[domain.CapitalSource]int64, len(s.dispatch)),
	}
	for k, v := range s.rejections {
		snap.Rejections[k] = v
	}
	for k, v := range s.strategies {
		snap.Strategies[k] = v
	}
	for k, v := range s.dispatch {
		snap.Dispatch[k] = v
	}
	return snap
}
