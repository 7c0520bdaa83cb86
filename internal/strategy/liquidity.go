package strategy

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// LiquidityConfig tunes the predictive depth model.
type LiquidityConfig struct {
	Chain domain.ChainID
	// Venues and Pairs define the watched venue x pair grid.
	Venues []string
	Pairs  []string
	// Interval is the snapshot cadence.
	Interval time.Duration
	// ImbalanceRatio is the bid/ask depth multiple that counts as
	// significant (and its reciprocal on the ask side).
	ImbalanceRatio decimal.Decimal
	// MinConfidence gates emission.
	MinConfidence float64
	// MinHistory is the snapshot count required before predicting.
	MinHistory int
	// Lookback bounds per-pair snapshot history.
	Lookback int
	// HorizonBlocks is how far ahead the prediction is expected to play
	// out; it also sets the opportunity deadline.
	HorizonBlocks uint64
	// NotionalUSD sizes the gross-profit estimate.
	NotionalUSD decimal.Decimal
	// GasUSD is the flat gas estimate attached to emitted opportunities.
	GasUSD decimal.Decimal
	// AccuracyWindow bounds the rolling accuracy sample.
	AccuracyWindow int
}

func (c *LiquidityConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.ImbalanceRatio.IsZero() {
		c.ImbalanceRatio = decimal.NewFromFloat(1.5)
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.6
	}
	if c.MinHistory <= 0 {
		c.MinHistory = 10
	}
	if c.Lookback <= 0 {
		c.Lookback = 100
	}
	if c.HorizonBlocks == 0 {
		c.HorizonBlocks = 5
	}
	if c.NotionalUSD.IsZero() {
		c.NotionalUSD = decimal.NewFromInt(1000)
	}
	if c.GasUSD.IsZero() {
		c.GasUSD = decimal.NewFromFloat(0.05)
	}
	if c.AccuracyWindow <= 0 {
		c.AccuracyWindow = 100
	}
}

// prediction is an open forecast awaiting resolution against later prices.
type prediction struct {
	venue     string
	pair      string
	up        bool
	changeBps decimal.Decimal
	price     decimal.Decimal
	block     uint64
}

// Liquidity is the predictive depth model: it snapshots order-book depth per
// venue/pair, treats a one-sided depth pile-up as a directional signal, and
// emits Predictive opportunities whose confidence is the signal magnitude
// scaled by the model's own rolling accuracy.
type Liquidity struct {
	cfg      LiquidityConfig
	provider domain.DepthProvider
	logger   *slog.Logger

	mu       sync.Mutex
	history  map[string][]domain.DepthSnapshot // venue|pair -> recent snapshots
	pending  []prediction
	accuracy []float64
}

// NewLiquidity creates the model over a depth provider.
func NewLiquidity(cfg LiquidityConfig, provider domain.DepthProvider, logger *slog.Logger) *Liquidity {
	cfg.applyDefaults()
	return &Liquidity{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(slog.String("component", "liquidity_model")),
		history:  make(map[string][]domain.DepthSnapshot),
	}
}

// Name implements Strategy.
func (l *Liquidity) Name() string { return "predictive_liquidity" }

// Accuracy returns the rolling empirical accuracy in [0,1]. It reads 1 until
// the first prediction resolves, so early confidence is not zeroed out.
func (l *Liquidity) Accuracy() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accuracyLocked()
}

func (l *Liquidity) accuracyLocked() float64 {
	if len(l.accuracy) == 0 {
		return 1
	}
	var sum float64
	for _, a := range l.accuracy {
		sum += a
	}
	return sum / float64(len(l.accuracy))
}

// Run implements Strategy: snapshot the grid, settle matured predictions,
// emit fresh ones, sleep, repeat.
func (l *Liquidity) Run(ctx context.Context, out chan<- domain.Opportunity) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for _, opp := range l.Tick(ctx) {
			select {
			case out <- opp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Tick performs one full observation cycle and returns any opportunities.
func (l *Liquidity) Tick(ctx context.Context) []domain.Opportunity {
	latest := make(map[string]domain.DepthSnapshot)
	for _, venue := range l.cfg.Venues {
		for _, pair := range l.cfg.Pairs {
			snap, err := l.provider.Depth(ctx, venue, pair)
			if err != nil {
				l.logger.Debug("depth snapshot failed",
					slog.String("venue", venue),
					slog.String("pair", pair),
					slog.String("error", err.Error()),
				)
				continue
			}
			latest[venue+"|"+pair] = snap
			l.record(snap)
		}
	}
	if len(latest) == 0 {
		return nil
	}

	l.settle(latest)
	return l.predict(latest)
}

func (l *Liquidity) record(snap domain.DepthSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := snap.Venue + "|" + snap.Pair
	h := append(l.history[key], snap)
	if overflow := len(h) - l.cfg.Lookback; overflow > 0 {
		h = append([]domain.DepthSnapshot(nil), h[overflow:]...)
	}
	l.history[key] = h
}

// settle scores every matured prediction against the price it resolved at:
// right direction and magnitude within 50% scores 1, right direction alone
// scores 0.5, anything else 0.
func (l *Liquidity) settle(latest map[string]domain.DepthSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.pending[:0]
	for _, p := range l.pending {
		snap, ok := latest[p.venue+"|"+p.pair]
		if !ok || snap.Block < p.block+l.cfg.HorizonBlocks {
			remaining = append(remaining, p)
			continue
		}

		actualBps := snap.MidPrice.Sub(p.price).
			Div(p.price).
			Mul(decimal.NewFromInt(10_000))
		directionRight := (p.up && actualBps.IsPositive()) || (!p.up && actualBps.IsNegative())
		magnitudeClose := actualBps.Abs().Sub(p.changeBps.Abs()).Abs().
			LessThan(p.changeBps.Abs().Mul(decimal.NewFromFloat(0.5)))

		score := 0.0
		switch {
		case directionRight && magnitudeClose:
			score = 1
		case directionRight:
			score = 0.5
		}
		l.accuracy = append(l.accuracy, score)
		if overflow := len(l.accuracy) - l.cfg.AccuracyWindow; overflow > 0 {
			l.accuracy = append([]float64(nil), l.accuracy[overflow:]...)
		}
	}
	l.pending = remaining
}

// predict scans the latest snapshots for depth imbalances and turns each
// confident one into a cross-venue opportunity.
func (l *Liquidity) predict(latest map[string]domain.DepthSnapshot) []domain.Opportunity {
	l.mu.Lock()
	defer l.mu.Unlock()

	accuracy := l.accuracyLocked()
	var out []domain.Opportunity

	for key, snap := range latest {
		if len(l.history[key]) < l.cfg.MinHistory {
			continue
		}
		if snap.AskDepth.IsZero() || snap.MidPrice.IsZero() {
			continue
		}

		ratio := snap.BidDepth.Div(snap.AskDepth)
		up := ratio.GreaterThan(l.cfg.ImbalanceRatio)
		down := ratio.LessThan(decimal.NewFromInt(1).Div(l.cfg.ImbalanceRatio))
		if !up && !down {
			continue
		}

		magnitude := ratio
		if down {
			magnitude = decimal.NewFromInt(1).Div(ratio)
		}
		changeBps := magnitude.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
		confidence := imbalanceConfidence(magnitude) * accuracy
		if confidence < l.cfg.MinConfidence {
			continue
		}

		opp, ok := l.buildOpportunity(snap, latest, up, changeBps, confidence)
		if !ok {
			continue
		}
		out = append(out, opp)
		l.pending = append(l.pending, prediction{
			venue:     snap.Venue,
			pair:      snap.Pair,
			up:        up,
			changeBps: changeBps,
			price:     snap.MidPrice,
			block:     snap.Block,
		})

		l.logger.Info("liquidity imbalance detected",
			slog.String("venue", snap.Venue),
			slog.String("pair", snap.Pair),
			slog.String("ratio", ratio.StringFixed(2)),
			slog.Bool("up", up),
			slog.Float64("confidence", confidence),
		)
	}
	return out
}

// buildOpportunity routes the trade around the predicted move: on a bullish
// signal buy at the cheapest venue and unwind at the imbalanced one; on a
// bearish signal buy at the imbalanced venue post-drop and unwind at the
// richest sibling.
func (l *Liquidity) buildOpportunity(snap domain.DepthSnapshot, latest map[string]domain.DepthSnapshot, up bool, changeBps decimal.Decimal, confidence float64) (domain.Opportunity, bool) {
	base, quote, ok := splitPair(snap.Pair)
	if !ok {
		return domain.Opportunity{}, false
	}

	var entry, exit string
	var gross decimal.Decimal
	if up {
		entry = l.cheapestVenue(snap.Pair, latest)
		exit = snap.Venue
		gross = l.cfg.NotionalUSD.Mul(changeBps).Div(decimal.NewFromInt(10_000))
	} else {
		entry = snap.Venue
		exit = l.richestVenue(snap.Pair, latest)
		exitSnap, okExit := latest[exit+"|"+snap.Pair]
		if !okExit {
			return domain.Opportunity{}, false
		}
		predictedEntry := snap.MidPrice.Mul(
			decimal.NewFromInt(1).Sub(changeBps.Div(decimal.NewFromInt(10_000))),
		)
		if exitSnap.MidPrice.LessThanOrEqual(predictedEntry) || predictedEntry.IsZero() {
			return domain.Opportunity{}, false
		}
		spreadBps := exitSnap.MidPrice.Sub(predictedEntry).
			Div(predictedEntry).
			Mul(decimal.NewFromInt(10_000))
		gross = l.cfg.NotionalUSD.Mul(spreadBps).Div(decimal.NewFromInt(10_000))
	}
	if entry == "" || exit == "" || entry == exit {
		return domain.Opportunity{}, false
	}

	path := domain.Path{
		{Venue: entry, TokenIn: quote, TokenOut: base},
		{Venue: exit, TokenIn: base, TokenOut: quote},
	}
	now := time.Now()
	return domain.Opportunity{
		ID:            domain.OpportunityID(path, l.Name(), now),
		Kind:          domain.KindPredictive,
		Chain:         l.cfg.Chain,
		Path:          path,
		GrossUSD:      gross,
		GasUSD:        l.cfg.GasUSD,
		NetUSD:        gross.Sub(l.cfg.GasUSD),
		NotionalUSD:   l.cfg.NotionalUSD,
		Confidence:    confidence,
		DiscoveredAt:  now,
		Strategy:      l.Name(),
		DeadlineBlock: snap.Block + l.cfg.HorizonBlocks,
	}, true
}

func (l *Liquidity) cheapestVenue(pair string, latest map[string]domain.DepthSnapshot) string {
	var venue string
	var best decimal.Decimal
	for _, v := range l.cfg.Venues {
		snap, ok := latest[v+"|"+pair]
		if !ok {
			continue
		}
		if venue == "" || snap.MidPrice.LessThan(best) {
			venue = v
			best = snap.MidPrice
		}
	}
	return venue
}

func (l *Liquidity) richestVenue(pair string, latest map[string]domain.DepthSnapshot) string {
	var venue string
	var best decimal.Decimal
	for _, v := range l.cfg.Venues {
		snap, ok := latest[v+"|"+pair]
		if !ok {
			continue
		}
		if venue == "" || snap.MidPrice.GreaterThan(best) {
			venue = v
			best = snap.MidPrice
		}
	}
	return venue
}

// imbalanceConfidence maps an imbalance magnitude to a base confidence:
// 0.5 at ratio 1, +0.2 per ratio point, capped at 0.95.
func imbalanceConfidence(magnitude decimal.Decimal) float64 {
	f, _ := magnitude.Sub(decimal.NewFromInt(1)).Float64()
	c := 0.5 + f*0.2
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func splitPair(pair string) (base, quote string, ok bool) {
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
