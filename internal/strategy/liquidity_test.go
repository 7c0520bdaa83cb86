package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// fakeDepth serves the current snapshot per venue|pair; tests mutate snaps
// between ticks to simulate market movement.
type fakeDepth struct {
	snaps map[string]domain.DepthSnapshot
}

func (f *fakeDepth) Depth(_ context.Context, venue, pair string) (domain.DepthSnapshot, error) {
	s, ok := f.snaps[venue+"|"+pair]
	if !ok {
		return domain.DepthSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func depthSnap(venue string, mid, bid, ask float64, block uint64) domain.DepthSnapshot {
	return domain.DepthSnapshot{
		Venue:    venue,
		Pair:     "WETH/USDC",
		MidPrice: decimal.NewFromFloat(mid),
		BidDepth: decimal.NewFromFloat(bid),
		AskDepth: decimal.NewFromFloat(ask),
		Block:    block,
	}
}

func newTestLiquidity(provider domain.DepthProvider) *Liquidity {
	return NewLiquidity(LiquidityConfig{
		Chain:      domain.ChainArbitrum,
		Venues:     []string{"uniswap", "sushi"},
		Pairs:      []string{"WETH/USDC"},
		MinHistory: 1,
	}, provider, testLogger())
}

func TestTickEmitsOnBidImbalance(t *testing.T) {
	provider := &fakeDepth{snaps: map[string]domain.DepthSnapshot{
		"uniswap|WETH/USDC": depthSnap("uniswap", 3000, 300_000, 100_000, 100),
		"sushi|WETH/USDC":   depthSnap("sushi", 2990, 100_000, 100_000, 100),
	}}
	l := newTestLiquidity(provider)

	opps := l.Tick(context.Background())
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.KindPredictive, opp.Kind)
	assert.Equal(t, uint64(105), opp.DeadlineBlock, "prediction horizon sets the deadline")
	require.Len(t, opp.Path, 2)
	assert.Equal(t, "sushi", opp.Path[0].Venue, "buy at the cheapest venue")
	assert.Equal(t, "uniswap", opp.Path[1].Venue, "unwind at the imbalanced venue")
	assert.Equal(t, "USDC", opp.Path[0].TokenIn)
	assert.Equal(t, "WETH", opp.Path[0].TokenOut)
	// 3x ratio -> 200bps move on $1000 notional = $20 gross.
	assert.True(t, opp.GrossUSD.Equal(decimal.NewFromInt(20)), "gross %s", opp.GrossUSD)
	assert.InDelta(t, 0.9, opp.Confidence, 1e-9)
}

func TestTickNoEmissionWhenBalanced(t *testing.T) {
	provider := &fakeDepth{snaps: map[string]domain.DepthSnapshot{
		"uniswap|WETH/USDC": depthSnap("uniswap", 3000, 110_000, 100_000, 100),
		"sushi|WETH/USDC":   depthSnap("sushi", 2990, 100_000, 110_000, 100),
	}}
	l := newTestLiquidity(provider)

	assert.Empty(t, l.Tick(context.Background()))
}

func TestAccuracyStartsAtOne(t *testing.T) {
	l := newTestLiquidity(&fakeDepth{})
	assert.Equal(t, 1.0, l.Accuracy())
}

func TestFailedPredictionsLowerConfidence(t *testing.T) {
	provider := &fakeDepth{snaps: map[string]domain.DepthSnapshot{
		"uniswap|WETH/USDC": depthSnap("uniswap", 3000, 300_000, 100_000, 100),
		"sushi|WETH/USDC":   depthSnap("sushi", 2990, 100_000, 100_000, 100),
	}}
	l := newTestLiquidity(provider)

	opps := l.Tick(context.Background())
	require.Len(t, opps, 1, "bullish prediction emitted")

	// Five blocks later the price went down instead: the prediction
	// settles at score zero.
	provider.snaps["uniswap|WETH/USDC"] = depthSnap("uniswap", 2900, 100_000, 100_000, 105)
	provider.snaps["sushi|WETH/USDC"] = depthSnap("sushi", 2890, 100_000, 100_000, 105)
	l.Tick(context.Background())
	assert.Equal(t, 0.0, l.Accuracy())

	// The same imbalance no longer clears the confidence gate.
	provider.snaps["uniswap|WETH/USDC"] = depthSnap("uniswap", 2900, 300_000, 100_000, 106)
	assert.Empty(t, l.Tick(context.Background()))
}

func TestCorrectPredictionKeepsAccuracy(t *testing.T) {
	provider := &fakeDepth{snaps: map[string]domain.DepthSnapshot{
		"uniswap|WETH/USDC": depthSnap("uniswap", 3000, 300_000, 100_000, 100),
		"sushi|WETH/USDC":   depthSnap("sushi", 2990, 100_000, 100_000, 100),
	}}
	l := newTestLiquidity(provider)

	require.Len(t, l.Tick(context.Background()), 1)

	// Price rose ~200bps as predicted.
	provider.snaps["uniswap|WETH/USDC"] = depthSnap("uniswap", 3060, 100_000, 100_000, 105)
	provider.snaps["sushi|WETH/USDC"] = depthSnap("sushi", 3050, 100_000, 100_000, 105)
	l.Tick(context.Background())
	assert.Equal(t, 1.0, l.Accuracy())
}
