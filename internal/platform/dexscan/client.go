// Package dexscan is an HTTP client for a DEX quote-aggregation API. It is
// the concrete adapter behind the price-quote and depth contracts: the
// multi-hop finder weights its trading graph with Quote/Pairs, and the
// predictive liquidity model samples Depth.
package dexscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// Client talks to a dexscan-compatible aggregator endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new quote-API client. baseURL is the aggregator root,
// e.g. "https://api.dexscan.example/v1".
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// quoteResponse is the /quote response envelope.
type quoteResponse struct {
	AmountOut string `json:"amount_out"`
	NoRoute   bool   `json:"no_route"`
}

// Quote returns the output amount for selling amountIn of tokenIn for
// tokenOut on venue. Quoted amounts are net of venue fees. A missing pool or
// empty route surfaces as domain.ErrNoQuote.
func (c *Client) Quote(ctx context.Context, venue, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("venue", venue)
	q.Set("token_in", tokenIn)
	q.Set("token_out", tokenOut)
	q.Set("amount_in", amountIn.String())

	body, status, err := c.get(ctx, "/quote", q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dexscan: quote %s %s/%s: %w", venue, tokenIn, tokenOut, err)
	}
	if status == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("dexscan: quote %s %s/%s: %w", venue, tokenIn, tokenOut, domain.ErrNoQuote)
	}
	if status != http.StatusOK {
		return decimal.Zero, fmt.Errorf("dexscan: quote %s %s/%s: HTTP %d", venue, tokenIn, tokenOut, status)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("dexscan: decode quote: %w", err)
	}
	if resp.NoRoute {
		return decimal.Zero, fmt.Errorf("dexscan: quote %s %s/%s: %w", venue, tokenIn, tokenOut, domain.ErrNoQuote)
	}

	out, err := decimal.NewFromString(resp.AmountOut)
	if err != nil {
		return decimal.Zero, fmt.Errorf("dexscan: parse amount_out %q: %w", resp.AmountOut, err)
	}
	return out, nil
}

// pairsResponse is the /pairs response envelope.
type pairsResponse struct {
	Pairs []struct {
		Venue    string `json:"venue"`
		TokenIn  string `json:"token_in"`
		TokenOut string `json:"token_out"`
	} `json:"pairs"`
}

// Pairs lists the (venue, tokenIn, tokenOut) combinations currently quotable.
func (c *Client) Pairs(ctx context.Context) ([]domain.Hop, error) {
	body, status, err := c.get(ctx, "/pairs", nil)
	if err != nil {
		return nil, fmt.Errorf("dexscan: pairs: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("dexscan: pairs: HTTP %d", status)
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dexscan: decode pairs: %w", err)
	}

	hops := make([]domain.Hop, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		hops = append(hops, domain.Hop{
			Venue:    p.Venue,
			TokenIn:  p.TokenIn,
			TokenOut: p.TokenOut,
		})
	}
	return hops, nil
}

// depthResponse is the /depth response envelope.
type depthResponse struct {
	MidPrice string `json:"mid_price"`
	BidDepth string `json:"bid_depth"`
	AskDepth string `json:"ask_depth"`
	Block    uint64 `json:"block"`
}

// Depth returns one order-book depth observation for a venue/pair.
func (c *Client) Depth(ctx context.Context, venue, pair string) (domain.DepthSnapshot, error) {
	q := url.Values{}
	q.Set("venue", venue)
	q.Set("pair", pair)

	body, status, err := c.get(ctx, "/depth", q)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("dexscan: depth %s %s: %w", venue, pair, err)
	}
	if status != http.StatusOK {
		return domain.DepthSnapshot{}, fmt.Errorf("dexscan: depth %s %s: HTTP %d", venue, pair, status)
	}

	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("dexscan: decode depth: %w", err)
	}

	mid, err := decimal.NewFromString(resp.MidPrice)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("dexscan: parse mid_price %q: %w", resp.MidPrice, err)
	}
	bid, err := decimal.NewFromString(resp.BidDepth)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("dexscan: parse bid_depth %q: %w", resp.BidDepth, err)
	}
	ask, err := decimal.NewFromString(resp.AskDepth)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("dexscan: parse ask_depth %q: %w", resp.AskDepth, err)
	}

	return domain.DepthSnapshot{
		Venue:    venue,
		Pair:     pair,
		MidPrice: mid,
		BidDepth: bid,
		AskDepth: ask,
		Block:    resp.Block,
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// get executes a GET against the aggregator and returns the body and status.
// Transport-level failures return an error; HTTP error statuses are left to
// the caller since some (404 on /quote) carry meaning.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

var (
	_ domain.Quoter        = (*Client)(nil)
	_ domain.DepthProvider = (*Client)(nil)
)
