package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/rpc"
)

// Router turns an accepted opportunity into an execution plan. Implemented by
// the execution router; a routing failure surfaces domain.ErrPlanInfeasible.
type Router interface {
	Route(ctx context.Context, opp domain.Opportunity) (domain.ExecutionPlan, error)
}

// Config tunes the coordinator.
type Config struct {
	// MinProfitUSD is the revalidated net-profit floor.
	MinProfitUSD decimal.Decimal
	// DedupWindow is the path-dedup TTL.
	DedupWindow time.Duration
	// CoalesceDelay is how long same-path arrivals are held so the best one
	// wins regardless of arrival order. Larger values catch more duplicates
	// at the cost of dispatch latency.
	CoalesceDelay time.Duration
	// GasTTL is how long a cached gas price stays fresh.
	GasTTL time.Duration
	// GasPerHop is the gas-unit estimate per swap leg used in revalidation.
	GasPerHop uint64
	// EthPriceUSD converts gas to USD.
	EthPriceUSD decimal.Decimal
	// CleanupInterval is the dedup-window sweep cadence.
	CleanupInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinProfitUSD.IsZero() {
		c.MinProfitUSD = decimal.NewFromFloat(0.10)
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 10 * time.Second
	}
	if c.CoalesceDelay <= 0 {
		c.CoalesceDelay = 500 * time.Millisecond
	}
	if c.GasTTL <= 0 {
		c.GasTTL = 5 * time.Second
	}
	if c.GasPerHop == 0 {
		c.GasPerHop = 150_000
	}
	if c.EthPriceUSD.IsZero() {
		c.EthPriceUSD = decimal.NewFromInt(3000)
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
}

// Coordinator is the single consumer of all strategy output. It establishes
// its own ordering over the unordered merge: deduplicate by path, revalidate
// net profit against the current gas price, enforce the profit floor, route
// survivors, and keep the process-lifetime stats.
type Coordinator struct {
	cfg      Config
	caller   rpc.Caller
	router   Router
	stats    *Stats
	window   *Window
	gasCache domain.GasCache         // optional, best effort
	oppCache domain.OpportunityCache // optional, best effort
	store    domain.OpportunityStore // optional, best effort
	healthFn func() []domain.EndpointHealth
	logger   *slog.Logger
}

// New creates a Coordinator. gasCache, oppCache, store, and healthFn may be
// nil; they enrich the pipeline but are never load-bearing.
func New(cfg Config, caller rpc.Caller, router Router, logger *slog.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:    cfg,
		caller: caller,
		router: router,
		stats:  NewStats(),
		window: NewWindow(cfg.DedupWindow),
		logger: logger.With(slog.String("component", "coordinator")),
	}
}

// WithGasCache attaches a shared gas-price cache used during revalidation.
func (c *Coordinator) WithGasCache(cache domain.GasCache) *Coordinator {
	c.gasCache = cache
	return c
}

// WithOpportunityCache attaches cross-process dedup visibility.
func (c *Coordinator) WithOpportunityCache(cache domain.OpportunityCache) *Coordinator {
	c.oppCache = cache
	return c
}

// WithStore attaches the opportunity ledger.
func (c *Coordinator) WithStore(store domain.OpportunityStore) *Coordinator {
	c.store = store
	return c
}

// WithEndpointHealth attaches the per-endpoint health view included in
// snapshots.
func (c *Coordinator) WithEndpointHealth(fn func() []domain.EndpointHealth) *Coordinator {
	c.healthFn = fn
	return c
}

// Snapshot implements domain.StatsSource.
func (c *Coordinator) Snapshot() domain.StatsSnapshot {
	snap := c.stats.Snapshot()
	if c.healthFn != nil {
		snap.Endpoints = c.healthFn()
	}
	return snap
}

// ReportExecution feeds an execution outcome back into the stats. Called by
// the dispatcher when the execution collaborator resolves a plan.
func (c *Coordinator) ReportExecution(res domain.ExecutionResult) {
	c.stats.Executed(res)
}

// Run consumes opportunities from in until cancellation or channel close,
// emitting validated plans on out. Same-path arrivals are coalesced for
// CoalesceDelay so the best one wins regardless of arrival order. No plan is
// dispatched after cancellation is observed.
func (c *Coordinator) Run(ctx context.Context, in <-chan domain.Opportunity, out chan<- domain.ExecutionPlan) error {
	c.logger.Info("coordinator started",
		slog.String("min_profit_usd", c.cfg.MinProfitUSD.String()),
		slog.Duration("dedup_window", c.cfg.DedupWindow),
	)
	defer c.logger.Info("coordinator stopped")

	flush := time.NewTicker(c.cfg.CoalesceDelay)
	defer flush.Stop()
	cleanup := time.NewTicker(c.cfg.CleanupInterval)
	defer cleanup.Stop()

	pending := make(map[string]domain.Opportunity)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case opp, ok := <-in:
			if !ok {
				return c.flushPending(ctx, pending, out)
			}
			c.coalesce(pending, opp)

		case <-flush.C:
			if err := c.flushPending(ctx, pending, out); err != nil {
				return err
			}

		case <-cleanup.C:
			c.window.Cleanup()
		}
	}
}

// coalesce keeps the best same-path arrival in the pending batch; the loser
// is counted as a superseded duplicate immediately.
func (c *Coordinator) coalesce(pending map[string]domain.Opportunity, opp domain.Opportunity) {
	key := opp.Path.Key()
	best, exists := pending[key]
	if !exists {
		pending[key] = opp
		return
	}
	loser := opp
	if opp.NetUSD.GreaterThan(best.NetUSD) {
		pending[key] = opp
		loser = best
	}
	c.stats.Produced(loser.Strategy)
	c.stats.Rejected(loser.Strategy, domain.RejectDuplicateSuperseded)
}

// flushPending runs every coalesced survivor through the pipeline and clears
// the batch.
func (c *Coordinator) flushPending(ctx context.Context, pending map[string]domain.Opportunity, out chan<- domain.ExecutionPlan) error {
	for key, opp := range pending {
		delete(pending, key)
		plan, accepted := c.Process(ctx, opp)
		if !accepted {
			continue
		}
		select {
		case out <- plan:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Process runs one opportunity through the full pipeline and returns the plan
// when it is accepted.
func (c *Coordinator) Process(ctx context.Context, opp domain.Opportunity) (domain.ExecutionPlan, bool) {
	log := c.logger.With(
		slog.String("opportunity_id", opp.ID),
		slog.String("strategy", opp.Strategy),
		slog.String("kind", string(opp.Kind)),
		slog.String("path", opp.Path.Key()),
	)
	c.stats.Produced(opp.Strategy)

	// 1. Block-deadline staleness (event-driven opportunities).
	if opp.DeadlineBlock > 0 {
		head, err := c.caller.BlockNumber(ctx, opp.Chain)
		if err != nil || head > opp.DeadlineBlock {
			c.reject(ctx, log, opp, domain.RejectStalePrice)
			return domain.ExecutionPlan{}, false
		}
	}

	// 2. Revalidate net profit at current gas; the producer's numbers are
	// advisory only.
	revalidated, err := c.Revalidate(ctx, opp)
	if err != nil {
		// No chain access this cycle; the next detection pass may
		// rediscover the opportunity.
		c.reject(ctx, log, opp, domain.RejectStalePrice)
		return domain.ExecutionPlan{}, false
	}

	// 3. Profit floor.
	if revalidated.NetUSD.LessThan(c.cfg.MinProfitUSD) {
		c.reject(ctx, log, revalidated, domain.RejectBelowThreshold)
		return domain.ExecutionPlan{}, false
	}

	// 4. Path dedup: keep only the best same-path opportunity per window.
	pathKey := revalidated.Path.Key()
	if !c.window.Admit(pathKey, revalidated.NetUSD) {
		c.reject(ctx, log, revalidated, domain.RejectDuplicateSuperseded)
		return domain.ExecutionPlan{}, false
	}
	if c.oppCache != nil {
		if recent, ok, err := c.oppCache.RecentNet(ctx, pathKey); err == nil && ok && recent.GreaterThanOrEqual(revalidated.NetUSD) {
			c.reject(ctx, log, revalidated, domain.RejectDuplicateSuperseded)
			return domain.ExecutionPlan{}, false
		}
		if err := c.oppCache.Remember(ctx, pathKey, revalidated.NetUSD, c.cfg.DedupWindow); err != nil {
			log.Debug("opportunity cache write failed", slog.String("error", err.Error()))
		}
	}

	// 5. Route to a capital source.
	plan, err := c.router.Route(ctx, revalidated)
	if err != nil {
		if errors.Is(err, domain.ErrPlanInfeasible) {
			c.reject(ctx, log, revalidated, domain.RejectPlanInfeasible)
		} else {
			log.Warn("routing failed", slog.String("error", err.Error()))
			c.reject(ctx, log, revalidated, domain.RejectPlanInfeasible)
		}
		return domain.ExecutionPlan{}, false
	}

	c.stats.Accepted(revalidated.Strategy, plan.Source)
	if c.store != nil {
		if err := c.store.Insert(ctx, revalidated, ""); err != nil {
			log.Warn("opportunity ledger write failed", slog.String("error", err.Error()))
		}
	}
	log.Info("opportunity accepted",
		slog.String("net_usd", revalidated.NetUSD.StringFixed(4)),
		slog.String("capital_source", string(plan.Source)),
		slog.String("position_usd", plan.PositionUSD.StringFixed(2)),
	)
	return plan, true
}

// Revalidate recomputes net profit from gross against the current gas price.
// It is idempotent for a fixed gas observation; the returned opportunity is a
// fresh value, the input is never mutated.
func (c *Coordinator) Revalidate(ctx context.Context, opp domain.Opportunity) (domain.Opportunity, error) {
	gwei, err := c.gasPrice(ctx, opp.Chain)
	if err != nil {
		return domain.Opportunity{}, err
	}

	hops := int64(len(opp.Path))
	if hops == 0 {
		hops = 1
	}
	gasEth := gwei.Mul(decimal.NewFromInt(int64(c.cfg.GasPerHop) * hops)).Div(decimal.NewFromInt(1_000_000_000))
	gasUSD := gasEth.Mul(c.cfg.EthPriceUSD)

	revalidated := opp
	revalidated.GasUSD = gasUSD
	revalidated.NetUSD = opp.GrossUSD.Sub(gasUSD)
	return revalidated, nil
}

// gasPrice reads through the gas cache when it is fresh, otherwise asks the
// chain and refreshes the cache best-effort.
func (c *Coordinator) gasPrice(ctx context.Context, chain domain.ChainID) (decimal.Decimal, error) {
	if c.gasCache != nil {
		if gwei, at, err := c.gasCache.GetGasPrice(ctx, chain); err == nil && time.Since(at) < c.cfg.GasTTL {
			return gwei, nil
		}
	}

	gwei, err := c.caller.GasPriceGwei(ctx, chain)
	if err != nil {
		return decimal.Zero, err
	}
	if c.gasCache != nil {
		if err := c.gasCache.SetGasPrice(ctx, chain, gwei, time.Now()); err != nil {
			c.logger.Debug("gas cache write failed", slog.String("error", err.Error()))
		}
	}
	return gwei, nil
}

func (c *Coordinator) reject(ctx context.Context, log *slog.Logger, opp domain.Opportunity, reason domain.RejectReason) {
	c.stats.Rejected(opp.Strategy, reason)
	if c.store != nil {
		if err := c.store.Insert(ctx, opp, reason); err != nil {
			log.Debug("opportunity ledger write failed", slog.String("error", err.Error()))
		}
	}
	log.Debug("opportunity rejected", slog.String("reason", string(reason)))
}

var _ domain.StatsSource = (*Coordinator)(nil)
