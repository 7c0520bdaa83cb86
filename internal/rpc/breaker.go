package rpc

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// CircuitState enumerates the per-endpoint breaker states.
type CircuitState int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed CircuitState = iota
	// StateOpen short-circuits calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen allows exactly one trial call after cool-down expiry.
	StateHalfOpen
)

// String returns the snake_case state name used in logs and health snapshots.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the breaker thresholds shared by all endpoints.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	FailureThreshold int
	// CoolDown is how long an open circuit rejects calls before a half-open
	// trial is permitted.
	CoolDown time.Duration
}

// circuit is the per-endpoint state. Each circuit has its own lock so
// unrelated endpoints never serialize on each other.
type circuit struct {
	mu            sync.Mutex
	state         CircuitState
	failures      int
	successes     int64
	openedAt      time.Time
	trialInFlight bool
	lastLatency   time.Duration
	lastUsedAt    time.Time
}

// Breaker tracks one circuit per endpoint key. The map is guarded by its own
// RWMutex; state transitions lock only the individual circuit.
type Breaker struct {
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.RWMutex
	circuits map[string]*circuit

	// now is swappable for tests.
	now func() time.Time
}

// NewBreaker creates a Breaker. Zero or negative config fields fall back to
// the defaults (threshold 3, cool-down 30s).
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	return &Breaker{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "circuit_breaker")),
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

func (b *Breaker) circuitFor(key string) *circuit {
	b.mu.RLock()
	c, ok := b.circuits[key]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.circuits[key]; ok {
		return c
	}
	c = &circuit{state: StateClosed}
	b.circuits[key] = c
	return c
}

// Allow reports whether a call to the endpoint may proceed. It is
// non-blocking. An open circuit whose cool-down has elapsed transitions to
// half-open lazily here and grants exactly one trial call; further callers
// are rejected until the trial resolves. Every granted call must be resolved
// with RecordSuccess, RecordFailure, or Release.
func (b *Breaker) Allow(key string) bool {
	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(c.openedAt) < b.cfg.CoolDown {
			return false
		}
		c.state = StateHalfOpen
		c.trialInFlight = true
		b.logger.Info("circuit half-open, allowing trial call",
			slog.String("endpoint", key),
		)
		return true

	case StateHalfOpen:
		if c.trialInFlight {
			return false
		}
		c.trialInFlight = true
		return true

	default:
		return false
	}
}

// RecordSuccess marks a completed successful call: the circuit closes and the
// consecutive-failure count resets.
func (b *Breaker) RecordSuccess(key string, latency time.Duration) {
	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		b.logger.Info("circuit closed after successful call",
			slog.String("endpoint", key),
			slog.String("previous", c.state.String()),
		)
	}
	c.state = StateClosed
	c.failures = 0
	c.trialInFlight = false
	c.successes++
	c.lastLatency = latency
	c.lastUsedAt = b.now()
}

// RecordFailure marks a completed failed call. In the closed state it
// increments the consecutive-failure count and opens the circuit at the
// threshold; a half-open trial failure re-opens immediately and restarts the
// cool-down.
func (b *Breaker) RecordFailure(key string) {
	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastUsedAt = b.now()

	switch c.state {
	case StateClosed:
		c.failures++
		if c.failures >= b.cfg.FailureThreshold {
			c.state = StateOpen
			c.openedAt = b.now()
			b.logger.Warn("circuit opened",
				slog.String("endpoint", key),
				slog.Int("consecutive_failures", c.failures),
				slog.Duration("cool_down", b.cfg.CoolDown),
			)
		}

	case StateHalfOpen:
		c.state = StateOpen
		c.openedAt = b.now()
		c.failures++
		c.trialInFlight = false
		b.logger.Warn("circuit re-opened after failed trial",
			slog.String("endpoint", key),
		)

	case StateOpen:
		// Late failure report from a call issued before opening; keep the
		// existing cool-down window.
	}
}

// Release returns an Allow grant without counting an outcome. Used when a
// granted call was never attempted (e.g. cancellation during backoff) so a
// half-open trial slot is not leaked and no failure is recorded for a call
// that never went out.
func (b *Breaker) Release(key string) {
	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trialInFlight = false
}

// State returns the current state for an endpoint key.
func (b *Breaker) State(key string) CircuitState {
	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Health reports a read-only view of every tracked circuit, joined against
// the given endpoints for chain/url attribution.
func (b *Breaker) Health(endpoints []domain.Endpoint) []domain.EndpointHealth {
	out := make([]domain.EndpointHealth, 0, len(endpoints))
	for _, ep := range endpoints {
		c := b.circuitFor(ep.Key())
		c.mu.Lock()
		h := domain.EndpointHealth{
			Chain:       ep.Chain,
			URL:         ep.URL,
			State:       c.state.String(),
			Failures:    c.failures,
			Successes:   c.successes,
			LastLatency: c.lastLatency,
			LastUsedAt:  c.lastUsedAt,
		}
		if c.state == StateOpen {
			h.LastOpenedAt = c.openedAt
		}
		c.mu.Unlock()
		out = append(out, h)
	}
	return out
}
