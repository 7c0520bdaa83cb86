package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Quoter is the price-quote contract consumed from a DEX-adapter
// collaborator. The multi-hop finder uses it to weight graph edges; quoted
// amounts are net of venue fees.
type Quoter interface {
	// Quote returns the output amount for selling amountIn of tokenIn for
	// tokenOut on venue. Implementations return ErrNoQuote (possibly
	// wrapped) when the venue has no pool or no liquidity for the pair.
	Quote(ctx context.Context, venue, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error)

	// Pairs lists the (venue, tokenIn, tokenOut) combinations currently
	// quotable, so strategies can build the trading graph without probing.
	Pairs(ctx context.Context) ([]Hop, error)
}

// DepthSnapshot is one order-book depth observation for a venue/pair, used by
// the predictive liquidity model.
type DepthSnapshot struct {
	Venue    string
	Pair     string // e.g. "WETH/USDC"
	MidPrice decimal.Decimal
	BidDepth decimal.Decimal // notional within 5% below mid
	AskDepth decimal.Decimal // notional within 5% above mid
	Block    uint64
}

// DepthProvider supplies order-book depth per venue/pair. Implemented by the
// same DEX-adapter collaborator that implements Quoter.
type DepthProvider interface {
	Depth(ctx context.Context, venue, pair string) (DepthSnapshot, error)
}
