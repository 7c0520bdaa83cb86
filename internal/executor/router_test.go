package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubWallet struct {
	balance decimal.Decimal
	err     error
}

func (w *stubWallet) BalanceUSD(context.Context) (decimal.Decimal, error) {
	return w.balance, w.err
}

func (w *stubWallet) Address() string { return "0xdeadbeef" }

type stubFlashloans struct {
	providers []domain.FlashloanProvider
	err       error
}

func (f *stubFlashloans) Providers(context.Context) ([]domain.FlashloanProvider, error) {
	return f.providers, f.err
}

func scalableOpp(gross, gas, notional float64) domain.Opportunity {
	path := domain.Path{
		{Venue: "sushiswap", TokenIn: "USDC", TokenOut: "WETH"},
		{Venue: "uniswap", TokenIn: "WETH", TokenOut: "USDC"},
	}
	now := time.Now()
	g := decimal.NewFromFloat(gross)
	c := decimal.NewFromFloat(gas)
	return domain.Opportunity{
		ID:           domain.OpportunityID(path, "multi_hop", now),
		Kind:         domain.KindMultiHop,
		Chain:        domain.ChainArbitrum,
		Path:         path,
		GrossUSD:     g,
		GasUSD:       c,
		NetUSD:       g.Sub(c),
		NotionalUSD:  decimal.NewFromFloat(notional),
		DiscoveredAt: now,
		Strategy:     "multi_hop",
	}
}

func aave(liquidityUSD int64) domain.FlashloanProvider {
	return domain.FlashloanProvider{
		Name:         "aave_v3",
		FeeBps:       9,
		LiquidityUSD: decimal.NewFromInt(liquidityUSD),
		Available:    true,
	}
}

func TestRouteScalesUpViaFlashloan(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(29)}
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{aave(100_000)}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	// Net $0.30 clears the $0.20 scale threshold; the multiplier cap binds
	// before liquidity does: min(29*100, 100k*0.5, 250k) = 2900.
	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)

	assert.Equal(t, domain.CapitalFlashloan, plan.Source)
	assert.Equal(t, "aave_v3", plan.Provider)
	assert.Equal(t, int64(9), plan.FeeBps)
	assert.True(t, plan.PositionUSD.Equal(decimal.NewFromInt(2900)), "position %s", plan.PositionUSD)

	// Floor carries the full loan fee: 0.10 + 2900*0.0009 = 2.71.
	assert.True(t, plan.MinProfitUSD.Equal(decimal.NewFromFloat(2.71)), "floor %s", plan.MinProfitUSD)
	assert.NotEmpty(t, plan.ID)
}

func TestRouteFeeNeverExceedsScaledGross(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(29)}
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{aave(100_000)}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)
	require.Equal(t, domain.CapitalFlashloan, plan.Source)

	fee := plan.PositionUSD.Mul(decimal.NewFromInt(plan.FeeBps)).Div(decimal.NewFromInt(10_000))
	scaledGross := plan.PositionUSD.Mul(decimal.NewFromFloat(0.35).Div(decimal.NewFromInt(10)))
	assert.True(t, fee.LessThan(scaledGross), "fee %s >= scaled gross %s", fee, scaledGross)
}

func TestRouteLiquidityBindsPosition(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(100)}
	// 0.5 * 5000 = 2500 binds before 100 * 100 = 10000.
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{aave(5_000)}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.CapitalFlashloan, plan.Source)
	assert.True(t, plan.PositionUSD.Equal(decimal.NewFromInt(2500)), "position %s", plan.PositionUSD)
}

func TestRouteThinLiquidityFallsBackToWallet(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(100)}
	// 0.5 * 1000 = 500 is under the 10x minimum multiple, not worth borrowing.
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{aave(1_000)}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.CapitalWallet, plan.Source)
	assert.Empty(t, plan.Provider)
	assert.True(t, plan.PositionUSD.Equal(decimal.NewFromInt(100)))
	assert.True(t, plan.MinProfitUSD.Equal(decimal.NewFromFloat(0.10)))
}

func TestRouteBelowThresholdStaysOnWallet(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(100)}
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{aave(100_000)}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	// Net $0.15 is under the $0.20 scale threshold.
	plan, err := r.Route(context.Background(), scalableOpp(0.20, 0.05, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.CapitalWallet, plan.Source)
}

func TestRoutePicksCheapestProvider(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(29)}
	balancer := domain.FlashloanProvider{
		Name:         "balancer",
		FeeBps:       0,
		LiquidityUSD: decimal.NewFromInt(100_000),
		Available:    true,
	}
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{aave(200_000), balancer}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)
	assert.Equal(t, "balancer", plan.Provider)
	assert.Equal(t, int64(0), plan.FeeBps)
	assert.True(t, plan.MinProfitUSD.Equal(decimal.NewFromFloat(0.10)), "no fee, base floor only")
}

func TestRouteSkipsUnavailableProviders(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(29)}
	down := aave(100_000)
	down.Available = false
	loans := &stubFlashloans{providers: []domain.FlashloanProvider{down}}
	r := NewRouter(RouterConfig{}, wallet, loans, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.CapitalWallet, plan.Source)
}

func TestRouteNilFlashloanSource(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(29)}
	r := NewRouter(RouterConfig{}, wallet, nil, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.CapitalWallet, plan.Source)
}

func TestRouteEmptyWalletInfeasible(t *testing.T) {
	wallet := &stubWallet{balance: decimal.Zero}
	r := NewRouter(RouterConfig{}, wallet, nil, testLogger())

	_, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	assert.ErrorIs(t, err, domain.ErrPlanInfeasible)
}

func TestRouteWalletNetUnderFloorInfeasible(t *testing.T) {
	// $1 wallet against a $10 notional: wallet gross scales down to $0.035,
	// which no longer clears the floor after gas.
	wallet := &stubWallet{balance: decimal.NewFromInt(1)}
	r := NewRouter(RouterConfig{}, wallet, nil, testLogger())

	_, err := r.Route(context.Background(), scalableOpp(0.35, 0.05, 10))
	assert.ErrorIs(t, err, domain.ErrPlanInfeasible)
}

func TestRouteCancelledContext(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(29)}
	r := NewRouter(RouterConfig{}, wallet, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Route(ctx, scalableOpp(0.35, 0.05, 10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteMaxPositionCapsWallet(t *testing.T) {
	wallet := &stubWallet{balance: decimal.NewFromInt(50_000)}
	r := NewRouter(RouterConfig{MaxPositionUSD: decimal.NewFromInt(5_000)}, wallet, nil, testLogger())

	plan, err := r.Route(context.Background(), scalableOpp(0.15, 0.05, 10))
	require.NoError(t, err)
	assert.True(t, plan.PositionUSD.Equal(decimal.NewFromInt(5_000)), "position %s", plan.PositionUSD)
}
