package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// RouterConfig tunes the capital-source decision.
type RouterConfig struct {
	// MinProfitUSD is the engine-wide profit floor; capital-source fees are
	// added on top of it per plan.
	MinProfitUSD decimal.Decimal
	// ScaleThresholdUSD is the net profit above which a flashloan scale-up is
	// considered.
	ScaleThresholdUSD decimal.Decimal
	// MinMultiplier is the smallest wallet multiple worth borrowing for. A
	// scale-up below it is not worth the fee and atomicity constraints.
	MinMultiplier int64
	// MaxMultiplier caps the flashloan position as a multiple of the wallet.
	MaxMultiplier int64
	// MaxPositionUSD caps wallet-funded positions.
	MaxPositionUSD decimal.Decimal
	// MaxFlashloanPositionUSD caps flashloan-funded positions.
	MaxFlashloanPositionUSD decimal.Decimal
	// LiquidityRatio is the fraction of a provider's reported liquidity the
	// router is willing to borrow.
	LiquidityRatio decimal.Decimal
}

func (c *RouterConfig) applyDefaults() {
	if c.MinProfitUSD.IsZero() {
		c.MinProfitUSD = decimal.NewFromFloat(0.10)
	}
	if c.ScaleThresholdUSD.IsZero() {
		c.ScaleThresholdUSD = decimal.NewFromFloat(0.20)
	}
	if c.MinMultiplier <= 0 {
		c.MinMultiplier = 10
	}
	if c.MaxMultiplier <= 0 {
		c.MaxMultiplier = 100
	}
	if c.MaxPositionUSD.IsZero() {
		c.MaxPositionUSD = decimal.NewFromInt(10_000)
	}
	if c.MaxFlashloanPositionUSD.IsZero() {
		c.MaxFlashloanPositionUSD = decimal.NewFromInt(250_000)
	}
	if c.LiquidityRatio.IsZero() {
		c.LiquidityRatio = decimal.NewFromFloat(0.5)
	}
}

// Router turns accepted opportunities into execution plans, choosing between
// wallet capital and a flashloan scale-up. Profit is assumed to scale
// linearly with position size up to the liquidity bounds; the opportunity's
// NotionalUSD anchors the rate.
type Router struct {
	cfg        RouterConfig
	wallet     domain.WalletState
	flashloans domain.FlashloanSource
	logger     *slog.Logger
}

// NewRouter creates the router. flashloans may be nil, in which case every
// plan is wallet-funded.
func NewRouter(cfg RouterConfig, wallet domain.WalletState, flashloans domain.FlashloanSource, logger *slog.Logger) *Router {
	cfg.applyDefaults()
	return &Router{
		cfg:        cfg,
		wallet:     wallet,
		flashloans: flashloans,
		logger:     logger.With(slog.String("component", "execution_router")),
	}
}

// Route builds the execution plan for an accepted opportunity. It returns
// domain.ErrPlanInfeasible when no capital source can fund the opportunity
// profitably.
func (r *Router) Route(ctx context.Context, opp domain.Opportunity) (domain.ExecutionPlan, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionPlan{}, err
	}

	balance, err := r.wallet.BalanceUSD(ctx)
	if err != nil {
		return domain.ExecutionPlan{}, fmt.Errorf("router: wallet balance: %w", err)
	}
	if balance.LessThanOrEqual(decimal.Zero) {
		return domain.ExecutionPlan{}, fmt.Errorf("router: empty wallet: %w", domain.ErrPlanInfeasible)
	}

	// 1. Profitable enough to scale? Try a flashloan first.
	if opp.NetUSD.GreaterThan(r.cfg.ScaleThresholdUSD) {
		if plan, ok := r.scaleUp(ctx, opp, balance); ok {
			return r.finalize(ctx, plan)
		}
	}

	// 2. Wallet plan at whatever the balance allows.
	plan, err := r.walletPlan(opp, balance)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}
	return r.finalize(ctx, plan)
}

// scaleUp sizes a flashloan-funded position. It reports false when no
// provider works or the scaled economics are worse than the wallet's.
func (r *Router) scaleUp(ctx context.Context, opp domain.Opportunity, balance decimal.Decimal) (domain.ExecutionPlan, bool) {
	if r.flashloans == nil {
		return domain.ExecutionPlan{}, false
	}
	provider, ok := r.cheapestProvider(ctx)
	if !ok {
		return domain.ExecutionPlan{}, false
	}

	rate, ok := profitRate(opp)
	if !ok {
		return domain.ExecutionPlan{}, false
	}

	position := decimal.Min(
		balance.Mul(decimal.NewFromInt(r.cfg.MaxMultiplier)),
		provider.LiquidityUSD.Mul(r.cfg.LiquidityRatio),
		r.cfg.MaxFlashloanPositionUSD,
	)
	if position.LessThan(balance.Mul(decimal.NewFromInt(r.cfg.MinMultiplier))) {
		// Liquidity too thin to make borrowing worthwhile.
		return domain.ExecutionPlan{}, false
	}

	scaledGross := position.Mul(rate)
	fee := provider.Fee(position)
	if fee.GreaterThanOrEqual(scaledGross) {
		return domain.ExecutionPlan{}, false
	}
	scaledNet := scaledGross.Sub(fee).Sub(opp.GasUSD)
	if scaledNet.LessThanOrEqual(r.cfg.MinProfitUSD) {
		return domain.ExecutionPlan{}, false
	}

	r.logger.Info("scaling up via flashloan",
		slog.String("opportunity", opp.ID),
		slog.String("provider", provider.Name),
		slog.String("position_usd", position.StringFixed(2)),
		slog.String("fee_usd", fee.StringFixed(4)),
		slog.String("scaled_net_usd", scaledNet.StringFixed(4)),
	)
	return domain.ExecutionPlan{
		OpportunityID: opp.ID,
		Opportunity:   opp,
		Source:        domain.CapitalFlashloan,
		Provider:      provider.Name,
		FeeBps:        provider.FeeBps,
		PositionUSD:   position,
		MinProfitUSD:  r.cfg.MinProfitUSD.Add(fee),
	}, true
}

// walletPlan funds the opportunity from the wallet alone.
func (r *Router) walletPlan(opp domain.Opportunity, balance decimal.Decimal) (domain.ExecutionPlan, error) {
	position := decimal.Min(balance, r.cfg.MaxPositionUSD)

	gross := opp.GrossUSD
	if rate, ok := profitRate(opp); ok {
		gross = position.Mul(rate)
	}
	net := gross.Sub(opp.GasUSD)
	if net.LessThanOrEqual(r.cfg.MinProfitUSD) {
		return domain.ExecutionPlan{}, fmt.Errorf("router: wallet net %s under floor: %w",
			net.StringFixed(4), domain.ErrPlanInfeasible)
	}

	return domain.ExecutionPlan{
		OpportunityID: opp.ID,
		Opportunity:   opp,
		Source:        domain.CapitalWallet,
		PositionUSD:   position,
		MinProfitUSD:  r.cfg.MinProfitUSD,
	}, nil
}

// finalize stamps identity and creation time, refusing to hand out a plan
// once the context is gone.
func (r *Router) finalize(ctx context.Context, plan domain.ExecutionPlan) (domain.ExecutionPlan, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionPlan{}, err
	}
	plan.ID = uuid.New().String()
	plan.CreatedAt = time.Now()
	return plan, nil
}

// cheapestProvider picks the usable provider with the lowest fee; liquidity
// breaks ties.
func (r *Router) cheapestProvider(ctx context.Context) (domain.FlashloanProvider, bool) {
	providers, err := r.flashloans.Providers(ctx)
	if err != nil {
		r.logger.Warn("flashloan providers unavailable", slog.String("error", err.Error()))
		return domain.FlashloanProvider{}, false
	}

	usable := providers[:0:0]
	for _, p := range providers {
		if p.Available && p.LiquidityUSD.GreaterThan(decimal.Zero) {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return domain.FlashloanProvider{}, false
	}
	sort.Slice(usable, func(i, j int) bool {
		if usable[i].FeeBps != usable[j].FeeBps {
			return usable[i].FeeBps < usable[j].FeeBps
		}
		return usable[i].LiquidityUSD.GreaterThan(usable[j].LiquidityUSD)
	})
	return usable[0], true
}

// profitRate is the gross profit per dollar of position, anchored at the
// notional the strategy measured.
func profitRate(opp domain.Opportunity) (decimal.Decimal, bool) {
	if opp.NotionalUSD.LessThanOrEqual(decimal.Zero) || opp.GrossUSD.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return opp.GrossUSD.Div(opp.NotionalUSD), true
}
