package strategy

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuoter serves a static rate table: amountOut = amountIn * rate.
type fakeQuoter struct {
	hops  []domain.Hop
	rates map[string]decimal.Decimal
}

func rateKey(venue, in, out string) string { return venue + "|" + in + "|" + out }

func (f *fakeQuoter) Quote(_ context.Context, venue, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := f.rates[rateKey(venue, tokenIn, tokenOut)]
	if !ok {
		return decimal.Zero, domain.ErrNoQuote
	}
	return amountIn.Mul(rate), nil
}

func (f *fakeQuoter) Pairs(_ context.Context) ([]domain.Hop, error) {
	return f.hops, nil
}

// stubCaller satisfies rpc.Caller with scripted responses.
type stubCaller struct {
	gasGwei decimal.Decimal
	block   uint64
	call    func(result any, method string, args ...any) error
}

func (s *stubCaller) Call(_ context.Context, _ domain.ChainID, result any, method string, args ...any) error {
	if s.call == nil {
		return domain.ErrNotFound
	}
	return s.call(result, method, args...)
}

func (s *stubCaller) BlockNumber(_ context.Context, _ domain.ChainID) (uint64, error) {
	return s.block, nil
}

func (s *stubCaller) GasPriceGwei(_ context.Context, _ domain.ChainID) (decimal.Decimal, error) {
	return s.gasGwei, nil
}

func quoterWith(rates map[string]decimal.Decimal) *fakeQuoter {
	f := &fakeQuoter{rates: rates}
	for key := range rates {
		parts := strings.SplitN(key, "|", 3)
		f.hops = append(f.hops, domain.Hop{Venue: parts[0], TokenIn: parts[1], TokenOut: parts[2]})
	}
	return f
}

func TestScanFindsProfitableCycle(t *testing.T) {
	quoter := quoterWith(map[string]decimal.Decimal{
		rateKey("uniswap", "USDC", "WETH"): decimal.NewFromFloat(0.0005),
		rateKey("sushi", "WETH", "ARB"):    decimal.NewFromInt(1500),
		rateKey("curve", "ARB", "USDC"):    decimal.NewFromFloat(1.36),
	})
	m := NewMultiHop(MultiHopConfig{Chain: domain.ChainArbitrum}, quoter, &stubCaller{gasGwei: decimal.NewFromFloat(0.1)}, testLogger())

	opps, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.KindMultiHop, opp.Kind)
	require.Len(t, opp.Path, 3)
	assert.Equal(t, []string{"USDC", "WETH", "ARB", "USDC"}, opp.Path.Tokens())
	// 10 USDC in, 10.20 out; gas 0.045/hop at 0.1 gwei.
	assert.True(t, opp.GrossUSD.Equal(decimal.NewFromFloat(0.2)), "gross %s", opp.GrossUSD)
	assert.True(t, opp.GasUSD.Equal(decimal.NewFromFloat(0.135)), "gas %s", opp.GasUSD)
	assert.True(t, opp.NetUSD.Equal(decimal.NewFromFloat(0.065)), "net %s", opp.NetUSD)
}

func TestScanOrdersByNetProfit(t *testing.T) {
	quoter := quoterWith(map[string]decimal.Decimal{
		// 2-hop cycle across two venues: same gross as the 3-hop one but
		// one leg less gas.
		rateKey("uniswap", "USDC", "WETH"): decimal.NewFromFloat(0.0005),
		rateKey("sushi", "WETH", "USDC"):   decimal.NewFromInt(2040),
		// 3-hop cycle.
		rateKey("sushi", "WETH", "ARB"):  decimal.NewFromInt(1500),
		rateKey("curve", "ARB", "USDC"):  decimal.NewFromFloat(1.36),
	})
	m := NewMultiHop(MultiHopConfig{Chain: domain.ChainArbitrum}, quoter, &stubCaller{gasGwei: decimal.NewFromFloat(0.1)}, testLogger())

	opps, err := m.Scan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, opps)

	assert.Len(t, opps[0].Path, 2, "cheaper two-hop cycle must rank first")
	for i := 1; i < len(opps); i++ {
		assert.True(t, opps[i-1].NetUSD.GreaterThanOrEqual(opps[i].NetUSD))
	}
}

func TestScanRejectsSameVenueRoundTrip(t *testing.T) {
	quoter := quoterWith(map[string]decimal.Decimal{
		// Out and back through the identical pool: profitable on paper,
		// degenerate in practice.
		rateKey("uniswap", "USDC", "WETH"): decimal.NewFromFloat(0.0005),
		rateKey("uniswap", "WETH", "USDC"): decimal.NewFromInt(2100),
	})
	m := NewMultiHop(MultiHopConfig{Chain: domain.ChainArbitrum}, quoter, &stubCaller{gasGwei: decimal.NewFromFloat(0.1)}, testLogger())

	opps, err := m.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScanRespectsMinNetFloor(t *testing.T) {
	quoter := quoterWith(map[string]decimal.Decimal{
		// Product 1.01: gross 0.10 on $10, below gas + floor.
		rateKey("uniswap", "USDC", "WETH"): decimal.NewFromFloat(0.0005),
		rateKey("sushi", "WETH", "USDC"):   decimal.NewFromInt(2020),
	})
	m := NewMultiHop(MultiHopConfig{
		Chain:     domain.ChainArbitrum,
		MinNetUSD: decimal.NewFromFloat(0.05),
	}, quoter, &stubCaller{gasGwei: decimal.NewFromFloat(0.1)}, testLogger())

	opps, err := m.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScanUnprofitableGraphEmitsNothing(t *testing.T) {
	quoter := quoterWith(map[string]decimal.Decimal{
		rateKey("uniswap", "USDC", "WETH"): decimal.NewFromFloat(0.0005),
		rateKey("sushi", "WETH", "USDC"):   decimal.NewFromInt(1990),
	})
	m := NewMultiHop(MultiHopConfig{Chain: domain.ChainArbitrum}, quoter, &stubCaller{gasGwei: decimal.NewFromFloat(0.1)}, testLogger())

	opps, err := m.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}
