package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Caller is the chain access contract every other component consumes. It is
// implemented by *Client; strategies and the coordinator depend on the
// interface so tests can substitute a fake chain.
type Caller interface {
	Call(ctx context.Context, chain domain.ChainID, result any, method string, args ...any) error
	BlockNumber(ctx context.Context, chain domain.ChainID) (uint64, error)
	GasPriceGwei(ctx context.Context, chain domain.ChainID) (decimal.Decimal, error)
}

// ClientConfig holds retry and timeout parameters for the resilient client.
type ClientConfig struct {
	// AttemptTimeout bounds a single network attempt.
	AttemptTimeout time.Duration
	// MaxAttempts is the retry budget per endpoint before falling through to
	// the next one. Bounded so one dead endpoint cannot absorb the call.
	MaxAttempts int
	// BackoffBase is the first retry delay on the same endpoint.
	BackoffBase time.Duration
	// BackoffCap caps the exponential growth.
	BackoffCap time.Duration
	// JitterPct randomizes each delay by ±JitterPct (0.5 = ±50%).
	JitterPct float64
}

func (c *ClientConfig) applyDefaults() {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 50 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Second
	}
	if c.JitterPct <= 0 {
		c.JitterPct = 0.5
	}
}

// conn is the slice of gethrpc.Client the resilient client uses, swappable in
// tests.
type conn interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Client is the resilient RPC client. It is safe for concurrent use from any
// component; lock granularity is per-endpoint circuit state plus one mutex
// guarding the lazily dialed connection map.
type Client struct {
	pool    *EndpointPool
	breaker *Breaker
	cfg     ClientConfig
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string]conn

	// dial is swappable for tests.
	dial func(ctx context.Context, url string) (conn, error)
}

// NewClient creates a resilient client over the given pool and breaker.
func NewClient(pool *EndpointPool, breaker *Breaker, cfg ClientConfig, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		pool:    pool,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "rpc_client")),
		conns:   make(map[string]conn),
		dial: func(ctx context.Context, url string) (conn, error) {
			return gethrpc.DialContext(ctx, url)
		},
	}
}

// Close tears down every dialed connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cn := range c.conns {
		cn.Close()
	}
	c.conns = make(map[string]conn)
}

// Health returns the per-endpoint breaker view for the reporting surface.
func (c *Client) Health() []domain.EndpointHealth {
	return c.breaker.Health(c.pool.All())
}

func (c *Client) connFor(ctx context.Context, ep domain.Endpoint) (conn, error) {
	key := ep.Key()
	c.mu.Lock()
	if cn, ok := c.conns[key]; ok {
		c.mu.Unlock()
		return cn, nil
	}
	c.mu.Unlock()

	// Dial outside the lock; a racing duplicate dial is closed below.
	cn, err := c.dial(ctx, ep.URL)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", ep.URL, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.conns[key]; ok {
		cn.Close()
		return existing, nil
	}
	c.conns[key] = cn
	return cn, nil
}

// backoff returns the cancellation-aware delay before retry attempt n (n >= 1)
// on the same endpoint: exponential with jitter, capped.
func (c *Client) backoff(n int) time.Duration {
	d := c.cfg.BackoffBase << uint(n-1)
	if d > c.cfg.BackoffCap || d <= 0 {
		d = c.cfg.BackoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*c.cfg.JitterPct
	return time.Duration(float64(d) * jitter)
}

// Call performs a JSON-RPC call against the first healthy endpoint for chain.
// Per endpoint it retries up to MaxAttempts with exponential backoff and
// jitter, consulting the circuit breaker before every attempt and reporting
// every outcome; then it falls through to the next endpoint in pool order.
// When every endpoint is denied or failed it returns
// domain.ErrAllEndpointsExhausted. A JSON-RPC application error (e.g. a
// revert) is returned immediately and counts as endpoint success.
func (c *Client) Call(ctx context.Context, chain domain.ChainID, result any, method string, args ...any) error {
	eps, err := c.pool.Select(chain)
	if err != nil {
		return err
	}

	var lastErr error
	for _, ep := range eps {
		key := ep.Key()

		for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
			if attempt > 1 {
				// Backoff between retries on the same endpoint. Nothing is
				// held during the wait, so cancellation here leaves the
				// breaker untouched.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.backoff(attempt - 1)):
				}
			}

			if !c.breaker.Allow(key) {
				lastErr = fmt.Errorf("%s: %w", ep.URL, domain.ErrCircuitOpen)
				break // next endpoint, no delay
			}

			cn, err := c.connFor(ctx, ep)
			if err != nil {
				if ctx.Err() != nil {
					// The caller cancelled mid-dial; not an endpoint fault.
					c.breaker.Release(key)
					return ctx.Err()
				}
				c.breaker.RecordFailure(key)
				lastErr = err
				continue
			}

			attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
			start := time.Now()
			err = cn.CallContext(attemptCtx, result, method, args...)
			latency := time.Since(start)
			cancel()

			if err == nil {
				c.breaker.RecordSuccess(key, latency)
				return nil
			}

			// Application-level JSON-RPC error: the endpoint is healthy, the
			// request itself failed. Not retryable and not an endpoint fault.
			var rpcErr gethrpc.Error
			if errors.As(err, &rpcErr) {
				c.breaker.RecordSuccess(key, latency)
				return fmt.Errorf("rpc: %s %s: %w", chain, method, err)
			}

			if ctx.Err() != nil {
				// The caller cancelled; the attempt never completed on its
				// own merits, so do not punish the endpoint.
				c.breaker.Release(key)
				return ctx.Err()
			}

			c.breaker.RecordFailure(key)
			lastErr = err
			c.logger.Debug("rpc attempt failed",
				slog.String("chain", string(chain)),
				slog.String("method", method),
				slog.String("endpoint", ep.URL),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Warn("all endpoints exhausted",
		slog.String("chain", string(chain)),
		slog.String("method", method),
		slog.String("last_error", errString(lastErr)),
	)
	return fmt.Errorf("rpc: %s %s: %w", chain, method, domain.ErrAllEndpointsExhausted)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// BlockNumber returns the current head block number for a chain.
func (c *Client) BlockNumber(ctx context.Context, chain domain.ChainID) (uint64, error) {
	var out hexutil.Uint64
	if err := c.Call(ctx, chain, &out, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(out), nil
}

// GasPriceGwei returns the current gas price in gwei.
func (c *Client) GasPriceGwei(ctx context.Context, chain domain.ChainID) (decimal.Decimal, error) {
	var out hexutil.Big
	if err := c.Call(ctx, chain, &out, "eth_gasPrice"); err != nil {
		return decimal.Zero, err
	}
	wei := decimal.NewFromBigInt(out.ToInt(), 0)
	return wei.Div(decimal.NewFromInt(1_000_000_000)), nil
}

var _ Caller = (*Client)(nil)
