package strategy

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/rpc"
)

// Event signatures watched by the hunter.
var (
	sigSwapV2   = common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")
	sigSwapV3   = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")
	sigTransfer = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
)

// PoolInfo describes a monitored DEX pool: which venue it belongs to and how
// to price its two tokens.
type PoolInfo struct {
	Venue     string
	Token0    string
	Token1    string
	Price0USD decimal.Decimal
	Price1USD decimal.Decimal
	Decimals0 int32
	Decimals1 int32
}

// TokenInfo prices a monitored ERC20 for large-transfer classification.
type TokenInfo struct {
	Symbol   string
	PriceUSD decimal.Decimal
	Decimals int32
}

// EventHunterConfig tunes the event-driven hunter.
type EventHunterConfig struct {
	Chain domain.ChainID
	// PollInterval is the head-polling cadence.
	PollInterval time.Duration
	// WhaleSwapUSD is the notional above which a swap is significant.
	WhaleSwapUSD decimal.Decimal
	// LargeTransferUSD is the notional above which a transfer is significant.
	LargeTransferUSD decimal.Decimal
	// DeadlineBlocks is the validity window of an emitted opportunity,
	// measured from the triggering block.
	DeadlineBlocks uint64
	// DedupTTL bounds how long a seen tx hash suppresses re-emission.
	DedupTTL time.Duration
	// ImpactBps estimates the price impact of a whale swap.
	ImpactBps int64
	// CaptureRatio is the fraction of the impact the arb can realistically
	// capture before the market closes the gap.
	CaptureRatio decimal.Decimal
	// GasUSD is the flat gas estimate attached to emitted opportunities.
	GasUSD decimal.Decimal
	// PendingValueWei flags a pending router tx as a large swap.
	PendingValueWei *big.Int
	// EthPriceUSD prices native-value pending swaps.
	EthPriceUSD decimal.Decimal

	// Pools maps pool contract address to metadata.
	Pools map[common.Address]PoolInfo
	// Tokens maps ERC20 address to pricing info.
	Tokens map[common.Address]TokenInfo
	// Routers maps DEX router address to venue name, for pending-tx triage.
	Routers map[common.Address]string
}

func (c *EventHunterConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.WhaleSwapUSD.IsZero() {
		c.WhaleSwapUSD = decimal.NewFromInt(50_000)
	}
	if c.LargeTransferUSD.IsZero() {
		c.LargeTransferUSD = decimal.NewFromInt(100_000)
	}
	if c.DeadlineBlocks == 0 {
		c.DeadlineBlocks = 2
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = time.Minute
	}
	if c.ImpactBps == 0 {
		c.ImpactBps = 50
	}
	if c.CaptureRatio.IsZero() {
		c.CaptureRatio = decimal.NewFromFloat(0.1)
	}
	if c.GasUSD.IsZero() {
		c.GasUSD = decimal.NewFromFloat(0.05)
	}
	if c.PendingValueWei == nil {
		c.PendingValueWei = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)) // 10 ETH
	}
	if c.EthPriceUSD.IsZero() {
		c.EthPriceUSD = decimal.NewFromInt(3000)
	}
}

// EventHunter watches new blocks and the pending-tx feed for price-moving
// events (whale swaps, large transfers) and emits short-lived opportunities
// that must be consumed within a couple of blocks.
type EventHunter struct {
	cfg    EventHunterConfig
	caller rpc.Caller
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewEventHunter creates the hunter over the resilient chain client.
func NewEventHunter(cfg EventHunterConfig, caller rpc.Caller, logger *slog.Logger) *EventHunter {
	cfg.applyDefaults()
	return &EventHunter{
		cfg:    cfg,
		caller: caller,
		logger: logger.With(slog.String("component", "event_hunter")),
		seen:   make(map[string]time.Time),
	}
}

// Name implements Strategy.
func (h *EventHunter) Name() string { return "event_hunter" }

// Run implements Strategy: the block scanner and the pending-tx watcher run
// as sibling loops until cancellation.
func (h *EventHunter) Run(ctx context.Context, out chan<- domain.Opportunity) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.watchBlocks(gctx, out) })
	g.Go(func() error { return h.watchPending(gctx, out) })
	return g.Wait()
}

// watchBlocks polls the chain head and scans every new block's logs.
func (h *EventHunter) watchBlocks(ctx context.Context, out chan<- domain.Opportunity) error {
	var last uint64
	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		head, err := h.caller.BlockNumber(ctx, h.cfg.Chain)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Debug("head poll failed", slog.String("error", err.Error()))
			continue
		}
		if last == 0 {
			last = head
			continue
		}
		if head <= last {
			continue
		}

		logs, err := h.fetchLogs(ctx, last+1, head)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Warn("log fetch failed",
				slog.Uint64("from", last+1),
				slog.Uint64("to", head),
				slog.String("error", err.Error()),
			)
			continue
		}
		last = head

		for _, lg := range logs {
			if opp, ok := h.classify(lg); ok {
				select {
				case out <- opp:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (h *EventHunter) fetchLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	var logs []types.Log
	filter := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   hexutil.EncodeUint64(to),
		"topics":    [][]common.Hash{{sigSwapV2, sigSwapV3, sigTransfer}},
	}
	if err := h.caller.Call(ctx, h.cfg.Chain, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	return logs, nil
}

// classify turns a raw log into an opportunity when it crosses the
// significance thresholds and has not been seen recently.
func (h *EventHunter) classify(lg types.Log) (domain.Opportunity, bool) {
	if len(lg.Topics) == 0 {
		return domain.Opportunity{}, false
	}
	switch lg.Topics[0] {
	case sigSwapV2, sigSwapV3:
		return h.classifySwap(lg)
	case sigTransfer:
		return h.classifyTransfer(lg)
	default:
		return domain.Opportunity{}, false
	}
}

func (h *EventHunter) classifySwap(lg types.Log) (domain.Opportunity, bool) {
	pool, ok := h.cfg.Pools[lg.Address]
	if !ok {
		return domain.Opportunity{}, false
	}

	signed := lg.Topics[0] == sigSwapV3
	notional := swapNotionalUSD(lg.Data, pool, signed)
	if notional.LessThan(h.cfg.WhaleSwapUSD) {
		return domain.Opportunity{}, false
	}
	if !h.remember(lg.TxHash.Hex() + ":swap") {
		return domain.Opportunity{}, false
	}

	// The whale moved the pool's price; buy on a sibling venue, unwind on
	// the impacted one.
	counter, ok := h.counterVenue(pool)
	if !ok {
		return domain.Opportunity{}, false
	}
	gross := notional.
		Mul(decimal.NewFromInt(h.cfg.ImpactBps)).
		Div(decimal.NewFromInt(10_000)).
		Mul(h.cfg.CaptureRatio)

	h.logger.Info("whale swap detected",
		slog.String("venue", pool.Venue),
		slog.String("pair", pool.Token0+"/"+pool.Token1),
		slog.String("notional_usd", notional.StringFixed(0)),
		slog.Uint64("block", lg.BlockNumber),
	)
	return h.emit(domain.KindEventDriven, domain.Path{
		{Venue: counter, TokenIn: pool.Token1, TokenOut: pool.Token0},
		{Venue: pool.Venue, TokenIn: pool.Token0, TokenOut: pool.Token1},
	}, gross, notional, 0.7, lg.BlockNumber), true
}

func (h *EventHunter) classifyTransfer(lg types.Log) (domain.Opportunity, bool) {
	token, ok := h.cfg.Tokens[lg.Address]
	if !ok || len(lg.Topics) < 3 || len(lg.Data) < 32 {
		return domain.Opportunity{}, false
	}

	amount := wordToDecimal(lg.Data[:32], false).Shift(-token.Decimals)
	notional := amount.Mul(token.PriceUSD)
	if notional.LessThan(h.cfg.LargeTransferUSD) {
		return domain.Opportunity{}, false
	}
	if !h.remember(lg.TxHash.Hex() + ":transfer") {
		return domain.Opportunity{}, false
	}

	pool, counter, ok := h.poolForToken(token.Symbol)
	if !ok {
		return domain.Opportunity{}, false
	}
	gross := notional.
		Mul(decimal.NewFromInt(h.cfg.ImpactBps)).
		Div(decimal.NewFromInt(10_000)).
		Mul(h.cfg.CaptureRatio)

	h.logger.Info("large transfer detected",
		slog.String("token", token.Symbol),
		slog.String("notional_usd", notional.StringFixed(0)),
		slog.Uint64("block", lg.BlockNumber),
	)
	return h.emit(domain.KindDirect, domain.Path{
		{Venue: counter, TokenIn: pool.Token1, TokenOut: pool.Token0},
		{Venue: pool.Venue, TokenIn: pool.Token0, TokenOut: pool.Token1},
	}, gross, notional, 0.5, lg.BlockNumber), true
}

// watchPending polls an installed pending-transaction filter and flags
// high-value router transactions. Endpoints without filter support degrade
// gracefully: the hunter keeps running on blocks alone.
func (h *EventHunter) watchPending(ctx context.Context, out chan<- domain.Opportunity) error {
	if len(h.cfg.Routers) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	var filterID string
	if err := h.caller.Call(ctx, h.cfg.Chain, &filterID, "eth_newPendingTransactionFilter"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Info("pending-tx filter unavailable, block scanning only",
			slog.String("error", err.Error()),
		)
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var hashes []common.Hash
		if err := h.caller.Call(ctx, h.cfg.Chain, &hashes, "eth_getFilterChanges", filterID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Debug("pending filter poll failed", slog.String("error", err.Error()))
			continue
		}

		for _, hash := range hashes {
			opp, ok := h.inspectPending(ctx, hash)
			if !ok {
				continue
			}
			select {
			case out <- opp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// pendingTx is the subset of eth_getTransactionByHash the hunter needs.
type pendingTx struct {
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

func (h *EventHunter) inspectPending(ctx context.Context, hash common.Hash) (domain.Opportunity, bool) {
	var tx *pendingTx
	if err := h.caller.Call(ctx, h.cfg.Chain, &tx, "eth_getTransactionByHash", hash); err != nil || tx == nil {
		return domain.Opportunity{}, false
	}
	if tx.To == nil || tx.Value == nil {
		return domain.Opportunity{}, false
	}
	venue, ok := h.cfg.Routers[*tx.To]
	if !ok || tx.Value.ToInt().Cmp(h.cfg.PendingValueWei) < 0 {
		return domain.Opportunity{}, false
	}
	if !h.remember(hash.Hex() + ":pending") {
		return domain.Opportunity{}, false
	}

	pool, counter, found := h.poolForVenue(venue)
	if !found {
		return domain.Opportunity{}, false
	}

	head, err := h.caller.BlockNumber(ctx, h.cfg.Chain)
	if err != nil {
		return domain.Opportunity{}, false
	}

	valueEth := decimal.NewFromBigInt(tx.Value.ToInt(), -18)
	gross := valueEth.
		Mul(h.cfg.EthPriceUSD).
		Mul(decimal.NewFromInt(h.cfg.ImpactBps)).
		Div(decimal.NewFromInt(10_000)).
		Mul(h.cfg.CaptureRatio)

	h.logger.Info("large pending swap detected",
		slog.String("venue", venue),
		slog.String("value_eth", valueEth.StringFixed(2)),
	)
	return h.emit(domain.KindEventDriven, domain.Path{
		{Venue: counter, TokenIn: pool.Token1, TokenOut: pool.Token0},
		{Venue: pool.Venue, TokenIn: pool.Token0, TokenOut: pool.Token1},
	}, gross, valueEth.Mul(h.cfg.EthPriceUSD), 0.6, head), true
}

func (h *EventHunter) emit(kind domain.OpportunityKind, path domain.Path, gross, notional decimal.Decimal, confidence float64, block uint64) domain.Opportunity {
	now := time.Now()
	return domain.Opportunity{
		ID:            domain.OpportunityID(path, h.Name(), now),
		Kind:          kind,
		Chain:         h.cfg.Chain,
		Path:          path,
		GrossUSD:      gross,
		GasUSD:        h.cfg.GasUSD,
		NetUSD:        gross.Sub(h.cfg.GasUSD),
		NotionalUSD:   notional,
		Confidence:    confidence,
		DiscoveredAt:  now,
		Strategy:      h.Name(),
		DeadlineBlock: block + h.cfg.DeadlineBlocks,
	}
}

// remember records a dedup key; it returns false when the key was already
// seen within the TTL. Expired entries are swept opportunistically.
func (h *EventHunter) remember(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for k, at := range h.seen {
		if now.Sub(at) > h.cfg.DedupTTL {
			delete(h.seen, k)
		}
	}
	if _, dup := h.seen[key]; dup {
		return false
	}
	h.seen[key] = now
	return true
}

// counterVenue finds another monitored pool with the same token pair.
func (h *EventHunter) counterVenue(pool PoolInfo) (string, bool) {
	for _, other := range h.cfg.Pools {
		if other.Venue != pool.Venue && other.Token0 == pool.Token0 && other.Token1 == pool.Token1 {
			return other.Venue, true
		}
	}
	return "", false
}

// poolForToken finds a monitored pool trading the token plus a counter venue.
func (h *EventHunter) poolForToken(symbol string) (PoolInfo, string, bool) {
	for _, pool := range h.cfg.Pools {
		if pool.Token0 != symbol && pool.Token1 != symbol {
			continue
		}
		if counter, ok := h.counterVenue(pool); ok {
			return pool, counter, true
		}
	}
	return PoolInfo{}, "", false
}

// poolForVenue finds a monitored pool on the venue plus a counter venue.
func (h *EventHunter) poolForVenue(venue string) (PoolInfo, string, bool) {
	for _, pool := range h.cfg.Pools {
		if pool.Venue != venue {
			continue
		}
		if counter, ok := h.counterVenue(pool); ok {
			return pool, counter, true
		}
	}
	return PoolInfo{}, "", false
}

// swapNotionalUSD estimates the USD size of a swap from its log data. V2
// packs four unsigned amounts, V3 two signed ones; the larger side priced in
// its own token is the notional.
func swapNotionalUSD(data []byte, pool PoolInfo, signed bool) decimal.Decimal {
	words := make([]decimal.Decimal, 0, len(data)/32)
	for i := 0; i+32 <= len(data); i += 32 {
		words = append(words, wordToDecimal(data[i:i+32], signed))
	}

	notional := decimal.Zero
	for i, w := range words {
		var priced decimal.Decimal
		if i%2 == 0 {
			priced = w.Shift(-pool.Decimals0).Mul(pool.Price0USD)
		} else {
			priced = w.Shift(-pool.Decimals1).Mul(pool.Price1USD)
		}
		if priced.GreaterThan(notional) {
			notional = priced
		}
	}
	return notional
}

// wordToDecimal decodes one 32-byte ABI word; signed words are two's
// complement and returned as their magnitude.
func wordToDecimal(word []byte, signed bool) decimal.Decimal {
	v := new(big.Int).SetBytes(word)
	if signed && len(word) == 32 && word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(max, v)
	}
	return decimal.NewFromBigInt(v, 0)
}
