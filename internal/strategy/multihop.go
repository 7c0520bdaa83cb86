package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/rpc"
)

// MultiHopConfig tunes the cycle finder.
type MultiHopConfig struct {
	Chain domain.ChainID
	// MinHops and MaxHops bound the cycle length (default 2-4).
	MinHops int
	MaxHops int
	// StartAmountUSD is the simulated position used to weight cycle legs.
	StartAmountUSD decimal.Decimal
	// MinNetUSD is the floor below which a cycle is not worth emitting.
	MinNetUSD decimal.Decimal
	// ScanInterval is the pause between full graph scans.
	ScanInterval time.Duration
	// MaxStartTokens bounds the search space per scan.
	MaxStartTokens int
	// MaxPerScan caps emissions per scan, best cycles first.
	MaxPerScan int
	// GasPerHop is the gas-unit estimate for one swap leg.
	GasPerHop uint64
	// FallbackGasGwei is used when the chain gas price is unavailable.
	FallbackGasGwei decimal.Decimal
	// EthPriceUSD converts the gas estimate to USD.
	EthPriceUSD decimal.Decimal
}

func (c *MultiHopConfig) applyDefaults() {
	if c.MinHops <= 0 {
		c.MinHops = 2
	}
	if c.MaxHops <= 0 {
		c.MaxHops = 4
	}
	if c.StartAmountUSD.IsZero() {
		c.StartAmountUSD = decimal.NewFromInt(10)
	}
	if c.MinNetUSD.IsZero() {
		c.MinNetUSD = decimal.NewFromFloat(0.05)
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = 2 * time.Second
	}
	if c.MaxStartTokens <= 0 {
		c.MaxStartTokens = 20
	}
	if c.MaxPerScan <= 0 {
		c.MaxPerScan = 50
	}
	if c.GasPerHop == 0 {
		c.GasPerHop = 150_000
	}
	if c.FallbackGasGwei.IsZero() {
		c.FallbackGasGwei = decimal.NewFromFloat(0.1)
	}
	if c.EthPriceUSD.IsZero() {
		c.EthPriceUSD = decimal.NewFromInt(3000)
	}
}

// startTokenOrder puts stable and blue-chip tokens first so cycles anchor on
// capital-efficient entry points.
var startTokenOrder = []string{"USDC", "USDT", "WETH", "DAI", "USDC.e"}

// MultiHop searches the venue-quote graph for profitable closed walks of 2-4
// swaps. Tokens are nodes, venue quotes are directed edges; a cycle whose
// compounded output exceeds its input before gas is a candidate.
type MultiHop struct {
	cfg    MultiHopConfig
	quoter domain.Quoter
	caller rpc.Caller
	logger *slog.Logger
}

// NewMultiHop creates the cycle finder. caller supplies the live gas price
// for the per-scan gas estimate.
func NewMultiHop(cfg MultiHopConfig, quoter domain.Quoter, caller rpc.Caller, logger *slog.Logger) *MultiHop {
	cfg.applyDefaults()
	return &MultiHop{
		cfg:    cfg,
		quoter: quoter,
		caller: caller,
		logger: logger.With(slog.String("component", "multihop_finder")),
	}
}

// Name implements Strategy.
func (m *MultiHop) Name() string { return "multi_hop" }

// Run implements Strategy: scan, emit, sleep, repeat until cancelled.
func (m *MultiHop) Run(ctx context.Context, out chan<- domain.Opportunity) error {
	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		opps, err := m.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("scan failed", slog.String("error", err.Error()))
		}
		for _, opp := range opps {
			select {
			case out <- opp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// edge is one directed venue quote in the trading graph.
type edge struct {
	venue    string
	tokenOut string
}

// Scan runs one full cycle search over the current quote graph and returns
// the profitable cycles, best first.
func (m *MultiHop) Scan(ctx context.Context) ([]domain.Opportunity, error) {
	pairs, err := m.quoter.Pairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("multihop: list pairs: %w", err)
	}

	adj := make(map[string][]edge)
	venues := make(map[[2]string][]string)
	for _, p := range pairs {
		adj[p.TokenIn] = append(adj[p.TokenIn], edge{venue: p.Venue, tokenOut: p.TokenOut})
		pair := [2]string{p.TokenIn, p.TokenOut}
		venues[pair] = append(venues[pair], p.Venue)
	}

	gasPerHopUSD := m.gasPerHopUSD(ctx)

	var found []domain.Opportunity
	for _, start := range m.startTokens(adj) {
		for length := m.cfg.MinHops; length <= m.cfg.MaxHops; length++ {
			for _, tokens := range cyclesOfLength(adj, start, length) {
				opp, ok := m.validateCycle(ctx, tokens, venues, gasPerHopUSD)
				if ok {
					found = append(found, opp)
				}
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
			}
		}
	}

	// Higher net profit first; equal profit resolved by fewer hops (lower
	// gas and execution risk).
	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].NetUSD.Equal(found[j].NetUSD) {
			return found[i].NetUSD.GreaterThan(found[j].NetUSD)
		}
		return len(found[i].Path) < len(found[j].Path)
	})
	if len(found) > m.cfg.MaxPerScan {
		found = found[:m.cfg.MaxPerScan]
	}
	return found, nil
}

// startTokens orders graph nodes for the search: stables and blue chips
// first, then the rest, capped at MaxStartTokens.
func (m *MultiHop) startTokens(adj map[string][]edge) []string {
	rest := make([]string, 0, len(adj))
	for token := range adj {
		rest = append(rest, token)
	}
	sort.Strings(rest)

	out := make([]string, 0, len(adj))
	seen := make(map[string]bool, len(adj))
	for _, token := range startTokenOrder {
		if _, ok := adj[token]; ok {
			out = append(out, token)
			seen[token] = true
		}
	}
	for _, token := range rest {
		if !seen[token] {
			out = append(out, token)
		}
	}
	if len(out) > m.cfg.MaxStartTokens {
		out = out[:m.cfg.MaxStartTokens]
	}
	return out
}

// cyclesOfLength enumerates token sequences start -> ... -> start of exactly
// length hops with distinct intermediate tokens.
func cyclesOfLength(adj map[string][]edge, start string, length int) [][]string {
	var cycles [][]string
	path := []string{start}
	onPath := map[string]bool{start: true}

	var dfs func(current string, remaining int)
	dfs = func(current string, remaining int) {
		for _, e := range adj[current] {
			next := e.tokenOut
			if remaining == 1 {
				if next == start {
					cycle := make([]string, len(path)+1)
					copy(cycle, path)
					cycle[len(path)] = start
					cycles = append(cycles, cycle)
				}
				continue
			}
			if onPath[next] {
				continue
			}
			path = append(path, next)
			onPath[next] = true
			dfs(next, remaining-1)
			path = path[:len(path)-1]
			delete(onPath, next)
		}
	}
	dfs(start, length)
	return cycles
}

// validateCycle simulates a token cycle leg by leg, picking the best venue
// for each leg, and returns an opportunity when net profit clears the floor.
func (m *MultiHop) validateCycle(ctx context.Context, tokens []string, venues map[[2]string][]string, gasPerHopUSD decimal.Decimal) (domain.Opportunity, bool) {
	amount := m.cfg.StartAmountUSD
	path := make(domain.Path, 0, len(tokens)-1)

	for i := 0; i < len(tokens)-1; i++ {
		venue, amountOut, ok := m.bestLeg(ctx, tokens[i], tokens[i+1], venues[[2]string{tokens[i], tokens[i+1]}], amount)
		if !ok {
			return domain.Opportunity{}, false
		}
		path = append(path, domain.Hop{Venue: venue, TokenIn: tokens[i], TokenOut: tokens[i+1]})
		amount = amountOut
	}

	// A cycle crossing the same venue pool twice is self-arbitrage through
	// an identical pool: degenerate, reject.
	if hasRepeatedPool(path) {
		return domain.Opportunity{}, false
	}

	gross := amount.Sub(m.cfg.StartAmountUSD)
	gas := gasPerHopUSD.Mul(decimal.NewFromInt(int64(len(path))))
	net := gross.Sub(gas)
	if net.LessThanOrEqual(m.cfg.MinNetUSD) {
		return domain.Opportunity{}, false
	}

	now := time.Now()
	return domain.Opportunity{
		ID:           domain.OpportunityID(path, m.Name(), now),
		Kind:         domain.KindMultiHop,
		Chain:        m.cfg.Chain,
		Path:         path,
		GrossUSD:     gross,
		GasUSD:       gas,
		NetUSD:       net,
		NotionalUSD:  m.cfg.StartAmountUSD,
		Confidence:   hopConfidence(len(path)),
		DiscoveredAt: now,
		Strategy:     m.Name(),
	}, true
}

// bestLeg quotes every venue offering the pair and returns the one with the
// highest output.
func (m *MultiHop) bestLeg(ctx context.Context, tokenIn, tokenOut string, venues []string, amountIn decimal.Decimal) (string, decimal.Decimal, bool) {
	var (
		bestVenue string
		bestOut   decimal.Decimal
	)
	for _, venue := range venues {
		out, err := m.quoter.Quote(ctx, venue, tokenIn, tokenOut, amountIn)
		if err != nil {
			continue
		}
		if bestVenue == "" || out.GreaterThan(bestOut) {
			bestVenue = venue
			bestOut = out
		}
	}
	return bestVenue, bestOut, bestVenue != ""
}

// gasPerHopUSD converts the live gas price into a per-leg USD estimate,
// falling back to the configured gas price when the chain is unreachable.
func (m *MultiHop) gasPerHopUSD(ctx context.Context) decimal.Decimal {
	gwei, err := m.caller.GasPriceGwei(ctx, m.cfg.Chain)
	if err != nil {
		gwei = m.cfg.FallbackGasGwei
	}
	gasEth := gwei.Mul(decimal.NewFromInt(int64(m.cfg.GasPerHop))).Div(decimal.NewFromInt(1_000_000_000))
	return gasEth.Mul(m.cfg.EthPriceUSD)
}

// hasRepeatedPool reports whether two hops touch the same venue pool, in
// either direction.
func hasRepeatedPool(path domain.Path) bool {
	seen := make(map[string]bool, len(path))
	for _, h := range path {
		a, b := h.TokenIn, h.TokenOut
		if b < a {
			a, b = b, a
		}
		key := h.Venue + ":" + a + "/" + b
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// hopConfidence degrades with path length: every extra leg adds slippage and
// inclusion risk.
func hopConfidence(hops int) float64 {
	c := 0.9 - 0.1*float64(hops-2)
	if c < 0.5 {
		c = 0.5
	}
	return c
}
