package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kevanbtc/apexarb/internal/coordinator"
	"github.com/kevanbtc/apexarb/internal/crypto"
	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/executor"
	"github.com/kevanbtc/apexarb/internal/monitor"
	"github.com/kevanbtc/apexarb/internal/notify"
	"github.com/kevanbtc/apexarb/internal/server"
	"github.com/kevanbtc/apexarb/internal/server/handler"
	"github.com/kevanbtc/apexarb/internal/server/ws"
	"github.com/kevanbtc/apexarb/internal/strategy"
)

const (
	// tradingLockKey guards the single trading consumer across processes.
	tradingLockKey = "trading-consumer"
	tradingLockTTL = 30 * time.Second

	// statsPublishInterval is the WebSocket stats broadcast cadence.
	statsPublishInterval = 5 * time.Second

	// oppBuffer absorbs detection bursts from the concurrent strategies.
	oppBuffer  = 256
	planBuffer = 32
)

// ScanMode runs the full detection and routing pipeline against a simulated
// wallet and settles every plan through the dry-run executor. Nothing touches
// the chain beyond read calls.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	wallet := executor.NewStaticWallet(
		decimal.NewFromFloat(a.cfg.Router.SimulatedBalanceUSD), "")
	return a.runEngine(ctx, deps, engineOptions{wallet: wallet})
}

// TradeMode runs the pipeline with the funding wallet's real balance behind
// the router. The trading leader lock ensures at most one consumer per
// deployment.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.liveEngine(ctx, deps, 0)
}

// FullMode is TradeMode plus periodic session archival to object storage.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	return a.liveEngine(ctx, deps, time.Hour)
}

// MonitorMode runs only the endpoint watchdog and the reporting surface; no
// strategies produce and no plans are dispatched.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	logger := slog.Default()
	g, gctx := errgroup.WithContext(ctx)

	watch := monitor.NewHealth(monitor.HealthConfig{
		Interval:      a.cfg.Monitor.Interval.Duration,
		DegradedAfter: a.cfg.Monitor.DegradedAfter.Duration,
	}, deps.RPC, deps.Notifier, logger)
	g.Go(func() error { return watch.Run(gctx) })

	if a.cfg.Server.Enabled {
		// Stats-only coordinator; it never runs, Snapshot just carries the
		// endpoint health view.
		coord := coordinator.New(coordinator.Config{}, deps.RPC, nil, logger).
			WithEndpointHealth(deps.RPC.Health)
		hub := ws.NewHub(logger, ws.Config{Mode: a.cfg.Mode, StartedAt: time.Now()})
		g.Go(func() error { return hub.Run(gctx) })
		a.startServer(g, gctx, deps, hub, coord, nil, time.Now())
	}

	return g.Wait()
}

// liveEngine acquires the trading leader lock, resolves the funding wallet,
// and runs the engine. archiveEvery > 0 adds periodic session archival.
func (a *App) liveEngine(ctx context.Context, deps *Dependencies, archiveEvery time.Duration) error {
	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, tradingLockKey, tradingLockTTL)
		if err != nil {
			return fmt.Errorf("app: trading lock: %w", err)
		}
		defer unlock()
	} else {
		a.logger.Warn("redis disabled; running without the trading leader lock")
	}

	wallet, err := a.fundingWallet(deps)
	if err != nil {
		return err
	}
	a.logger.Info("funding wallet resolved", slog.String("address", wallet.Address()))

	return a.runEngine(ctx, deps, engineOptions{wallet: wallet, archiveEvery: archiveEvery})
}

// engineOptions is what distinguishes the engine-running modes.
type engineOptions struct {
	wallet       domain.WalletState
	archiveEvery time.Duration
}

// runEngine assembles strategies -> coordinator -> router -> dispatcher and
// runs them until cancellation, together with the watchdog, the reporting
// surface, and the event fan-out. On return it emits the session summary.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, opts engineOptions) error {
	logger := slog.Default()
	startedAt := time.Now()
	chain := a.primaryChain()

	var flashProviders []domain.FlashloanProvider
	for _, p := range a.cfg.Flashloan.Providers {
		flashProviders = append(flashProviders, domain.FlashloanProvider{
			Name:         p.Name,
			FeeBps:       p.FeeBps,
			LiquidityUSD: decimal.NewFromFloat(p.LiquidityUSD),
			Available:    p.Available,
		})
	}
	flashloans := executor.NewStaticFlashloans(flashProviders)

	router := executor.NewRouter(executor.RouterConfig{
		MinProfitUSD:            decimal.NewFromFloat(a.cfg.Coordinator.MinProfitUSD),
		ScaleThresholdUSD:       decimal.NewFromFloat(a.cfg.Router.ScaleThresholdUSD),
		MinMultiplier:           a.cfg.Router.MinMultiplier,
		MaxMultiplier:           a.cfg.Router.MaxMultiplier,
		MaxPositionUSD:          decimal.NewFromFloat(a.cfg.Router.MaxPositionUSD),
		MaxFlashloanPositionUSD: decimal.NewFromFloat(a.cfg.Router.MaxFlashloanPositionUSD),
		LiquidityRatio:          decimal.NewFromFloat(a.cfg.Router.LiquidityRatio),
	}, opts.wallet, flashloans, logger)

	coord := coordinator.New(coordinator.Config{
		MinProfitUSD:  decimal.NewFromFloat(a.cfg.Coordinator.MinProfitUSD),
		DedupWindow:   a.cfg.Coordinator.DedupWindow.Duration,
		CoalesceDelay: a.cfg.Coordinator.CoalesceDelay.Duration,
		GasTTL:        a.cfg.Coordinator.GasTTL.Duration,
		GasPerHop:     uint64(a.cfg.Coordinator.GasPerHop),
		EthPriceUSD:   decimal.NewFromFloat(a.cfg.Coordinator.EthPriceUSD),
	}, deps.RPC, router, logger)
	if deps.GasCache != nil {
		coord.WithGasCache(deps.GasCache)
	}
	if deps.OppCache != nil {
		coord.WithOpportunityCache(deps.OppCache)
	}
	if deps.OpportunityStore != nil {
		coord.WithStore(deps.OpportunityStore)
	}
	coord.WithEndpointHealth(deps.RPC.Health)

	supervisor, err := a.buildStrategies(deps, chain)
	if err != nil {
		return fmt.Errorf("app: strategies: %w", err)
	}

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(logger, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt})
	}
	bridge := newPipelineBridge(coord, hub, deps.Notifier,
		decimal.NewFromFloat(a.cfg.Notify.FloorUSD), logger)

	disp := executor.NewDispatcher(executor.NewDryRun(logger), bridge, logger)
	if deps.ExecutionStore != nil {
		disp.WithStore(deps.ExecutionStore)
	}

	g, gctx := errgroup.WithContext(ctx)

	opps := make(chan domain.Opportunity, oppBuffer)
	coordIn := make(chan domain.Opportunity, oppBuffer)
	plans := make(chan domain.ExecutionPlan, planBuffer)
	dispatchIn := make(chan domain.ExecutionPlan, planBuffer)

	g.Go(func() error {
		defer close(opps)
		return supervisor.Run(gctx, opps)
	})

	// Opportunity tee: every raw detection goes to the dashboard before the
	// coordinator filters it.
	g.Go(func() error {
		defer close(coordIn)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case opp, ok := <-opps:
				if !ok {
					return nil
				}
				if hub != nil {
					hub.Publish(ws.ChannelOpportunities, opp)
				}
				select {
				case coordIn <- opp:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	g.Go(func() error {
		defer close(plans)
		return coord.Run(gctx, coordIn, plans)
	})

	// Plan tee: remember each plan so its execution result can be matched
	// back for the operator notification.
	g.Go(func() error {
		defer close(dispatchIn)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case plan, ok := <-plans:
				if !ok {
					return nil
				}
				bridge.trackPlan(plan)
				if hub != nil {
					hub.Publish(ws.ChannelPlans, plan)
				}
				select {
				case dispatchIn <- plan:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	g.Go(func() error { return disp.Run(gctx, dispatchIn) })

	watch := monitor.NewHealth(monitor.HealthConfig{
		Interval:      a.cfg.Monitor.Interval.Duration,
		DegradedAfter: a.cfg.Monitor.DegradedAfter.Duration,
	}, deps.RPC, deps.Notifier, logger)
	g.Go(func() error { return watch.Run(gctx) })

	if hub != nil {
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error {
			ticker := time.NewTicker(statsPublishInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					hub.Publish(ws.ChannelStats, coord.Snapshot())
				}
			}
		})
		a.startServer(g, gctx, deps, hub, coord, supervisor.Enabled(), startedAt)
	}

	if opts.archiveEvery > 0 && deps.Archiver != nil {
		g.Go(func() error {
			ticker := time.NewTicker(opts.archiveEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					path, err := deps.Archiver.ArchiveSession(gctx, coord.Snapshot())
					if err != nil {
						logger.Warn("periodic session archive failed", slog.String("error", err.Error()))
						continue
					}
					logger.Info("session archived", slog.String("path", path))
				}
			}
		})
	}

	err = g.Wait()
	a.finishSession(deps, coord.Snapshot())
	return err
}

// finishSession logs the session totals and, best effort, delivers the
// operator summary and the final archive. The engine context is gone by now,
// so both run on short background deadlines.
func (a *App) finishSession(deps *Dependencies, snap domain.StatsSnapshot) {
	a.logger.Info("session finished",
		slog.Int64("opportunities", snap.TotalOpportunities),
		slog.Int64("accepted", snap.Accepted),
		slog.Int64("executed", snap.Executed),
		slog.Int64("failed", snap.Failed),
		slog.String("pnl_usd", snap.PnLUSD.StringFixed(4)),
	)

	if deps.Notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		title, msg := notify.SessionMessage(snap)
		if err := deps.Notifier.Notify(ctx, notify.EventSession, title, msg); err != nil {
			a.logger.Warn("session summary notification failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	if deps.Archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		path, err := deps.Archiver.ArchiveSession(ctx, snap)
		if err != nil {
			a.logger.Warn("session archive failed", slog.String("error", err.Error()))
		} else {
			a.logger.Info("session archived", slog.String("path", path))
		}
		cancel()
	}
}

// buildStrategies registers every enabled strategy that has its inputs wired
// and supervises the configured active set. Strategies that need the quote
// API are skipped with a warning when it is not configured.
func (a *App) buildStrategies(deps *Dependencies, chain domain.ChainID) (*strategy.Supervisor, error) {
	logger := slog.Default()
	registry := strategy.NewRegistry()
	var available []string

	if a.cfg.Strategies.MultiHop.Enabled {
		if deps.Quotes == nil {
			logger.Warn("multi_hop enabled but no quote API configured; skipping")
		} else {
			registry.Register(strategy.NewMultiHop(strategy.MultiHopConfig{
				Chain:          chain,
				MinHops:        a.cfg.Strategies.MultiHop.MinHops,
				MaxHops:        a.cfg.Strategies.MultiHop.MaxHops,
				StartAmountUSD: decimal.NewFromFloat(a.cfg.Strategies.MultiHop.StartAmountUSD),
				MinNetUSD:      decimal.NewFromFloat(a.cfg.Strategies.MultiHop.MinNetUSD),
				ScanInterval:   a.cfg.Strategies.MultiHop.ScanInterval.Duration,
				MaxStartTokens: a.cfg.Strategies.MultiHop.MaxStartTokens,
				MaxPerScan:     a.cfg.Strategies.MultiHop.MaxPerScan,
				GasPerHop:      uint64(a.cfg.Coordinator.GasPerHop),
				EthPriceUSD:    decimal.NewFromFloat(a.cfg.Coordinator.EthPriceUSD),
			}, deps.Quotes, deps.RPC, logger))
			available = append(available, "multi_hop")
		}
	}

	if a.cfg.Strategies.EventHunter.Enabled {
		wl := watchlistFor(chain)
		if len(wl.pools) == 0 {
			logger.Warn("event_hunter has no watchlist for chain",
				slog.String("chain", string(chain)))
		}
		registry.Register(strategy.NewEventHunter(strategy.EventHunterConfig{
			Chain:            chain,
			PollInterval:     a.cfg.Strategies.EventHunter.PollInterval.Duration,
			WhaleSwapUSD:     decimal.NewFromFloat(a.cfg.Strategies.EventHunter.WhaleSwapUSD),
			LargeTransferUSD: decimal.NewFromFloat(a.cfg.Strategies.EventHunter.LargeTransferUSD),
			DeadlineBlocks:   uint64(a.cfg.Strategies.EventHunter.DeadlineBlocks),
			DedupTTL:         a.cfg.Strategies.EventHunter.DedupTTL.Duration,
			ImpactBps:        a.cfg.Strategies.EventHunter.ImpactBps,
			CaptureRatio:     decimal.NewFromFloat(a.cfg.Strategies.EventHunter.CaptureRatio),
			EthPriceUSD:      decimal.NewFromFloat(a.cfg.Coordinator.EthPriceUSD),
			Pools:            wl.pools,
			Tokens:           wl.tokens,
			Routers:          wl.routers,
		}, deps.RPC, logger))
		available = append(available, "event_hunter")
	}

	if a.cfg.Strategies.Liquidity.Enabled {
		if deps.Quotes == nil {
			logger.Warn("predictive_liquidity enabled but no quote API configured; skipping")
		} else {
			registry.Register(strategy.NewLiquidity(strategy.LiquidityConfig{
				Chain:          chain,
				Venues:         a.cfg.Strategies.Liquidity.Venues,
				Pairs:          a.cfg.Strategies.Liquidity.Pairs,
				Interval:       a.cfg.Strategies.Liquidity.Interval.Duration,
				ImbalanceRatio: decimal.NewFromFloat(a.cfg.Strategies.Liquidity.ImbalanceRatio),
				MinConfidence:  a.cfg.Strategies.Liquidity.MinConfidence,
				MinHistory:     a.cfg.Strategies.Liquidity.MinHistory,
				HorizonBlocks:  uint64(a.cfg.Strategies.Liquidity.HorizonBlocks),
				NotionalUSD:    decimal.NewFromFloat(a.cfg.Strategies.Liquidity.NotionalUSD),
			}, deps.Quotes, logger))
			available = append(available, "predictive_liquidity")
		}
	}

	enabled := available
	if len(a.cfg.Strategies.Active) > 0 {
		enabled = enabled[:0:0]
		for _, name := range a.cfg.Strategies.Active {
			if _, err := registry.Get(name); err != nil {
				logger.Warn("active strategy not runnable; skipping",
					slog.String("strategy", name))
				continue
			}
			enabled = append(enabled, name)
		}
	}

	return strategy.NewSupervisor(registry, enabled, logger)
}

// startServer registers the HTTP reporting surface on the errgroup, with a
// graceful shutdown tied to the group context.
func (a *App) startServer(g *errgroup.Group, gctx context.Context, deps *Dependencies, hub *ws.Hub, stats domain.StatsSource, strategies []string, startedAt time.Time) {
	logger := slog.Default()

	checks := make(map[string]handler.CheckFunc, len(deps.ReadyChecks))
	for name, fn := range deps.ReadyChecks {
		checks[name] = handler.CheckFunc(fn)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, strategies, startedAt),
		Stats:  handler.NewStatsHandler(stats),
	}
	if deps.OpportunityStore != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(deps.OpportunityStore, logger)
	}
	if deps.ExecutionStore != nil {
		handlers.Executions = handler.NewExecutionHandler(deps.ExecutionStore, logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return gctx.Err()
	})
}

// fundingWallet resolves the configured private key into the live wallet view.
func (a *App) fundingWallet(deps *Dependencies) (domain.WalletState, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: funding wallet: %w", err)
	}
	wallet, err := executor.NewChainWallet(a.primaryChain(), key, deps.RPC,
		decimal.NewFromFloat(a.cfg.Coordinator.EthPriceUSD))
	if err != nil {
		return nil, fmt.Errorf("app: funding wallet: %w", err)
	}
	return wallet, nil
}

// primaryChain is the chain strategies and the wallet operate on. Validation
// guarantees at least one chain is configured.
func (a *App) primaryChain() domain.ChainID {
	return domain.ChainID(strings.ToLower(a.cfg.Chains[0].Name))
}

// pipelineBridge closes the loop from the dispatcher back into the
// coordinator's stats, the WebSocket hub, and operator notifications. It
// remembers dispatched plans so a result can be rendered with its plan.
type pipelineBridge struct {
	coord       *coordinator.Coordinator
	hub         *ws.Hub
	notifier    *notify.Notifier
	notifyFloor decimal.Decimal
	logger      *slog.Logger

	mu    sync.Mutex
	plans map[string]domain.ExecutionPlan
}

func newPipelineBridge(coord *coordinator.Coordinator, hub *ws.Hub, notifier *notify.Notifier, notifyFloor decimal.Decimal, logger *slog.Logger) *pipelineBridge {
	return &pipelineBridge{
		coord:       coord,
		hub:         hub,
		notifier:    notifier,
		notifyFloor: notifyFloor,
		logger:      logger.With(slog.String("component", "pipeline_bridge")),
		plans:       make(map[string]domain.ExecutionPlan),
	}
}

// trackPlan remembers the plan and notifies operators when its net clears the
// notify floor.
func (b *pipelineBridge) trackPlan(plan domain.ExecutionPlan) {
	b.mu.Lock()
	b.plans[plan.ID] = plan
	b.mu.Unlock()

	if b.notifier == nil || plan.Opportunity.NetUSD.LessThan(b.notifyFloor) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		title, msg := notify.OpportunityMessage(plan)
		if err := b.notifier.Notify(ctx, notify.EventOpportunity, title, msg); err != nil {
			b.logger.Warn("opportunity notification failed", slog.String("error", err.Error()))
		}
	}()
}

// ReportExecution implements executor.Reporter.
func (b *pipelineBridge) ReportExecution(res domain.ExecutionResult) {
	b.coord.ReportExecution(res)
	if b.hub != nil {
		b.hub.Publish(ws.ChannelExecutions, res)
	}

	b.mu.Lock()
	plan, ok := b.plans[res.PlanID]
	delete(b.plans, res.PlanID)
	b.mu.Unlock()

	if !ok || b.notifier == nil {
		return
	}
	// Delivery must not block the dispatch loop.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		title, msg := notify.ExecutionMessage(plan, res)
		if err := b.notifier.Notify(ctx, notify.EventExecution, title, msg); err != nil {
			b.logger.Warn("execution notification failed", slog.String("error", err.Error()))
		}
	}()
}

// Compile-time interface check.
var _ executor.Reporter = (*pipelineBridge)(nil)
