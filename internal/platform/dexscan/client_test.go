package dexscan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

func TestQuoteReturnsAmountOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "uniswap_v3", r.URL.Query().Get("venue"))
		assert.Equal(t, "WETH", r.URL.Query().Get("token_in"))
		assert.Equal(t, "USDC", r.URL.Query().Get("token_out"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"amount_out":"2991.53"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	out, err := c.Quote(context.Background(), "uniswap_v3", "WETH", "USDC", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, out.Equal(decimal.RequireFromString("2991.53")))
}

func TestQuoteNoRouteIsErrNoQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"no_route":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Quote(context.Background(), "sushiswap", "DAI", "WBTC", decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, domain.ErrNoQuote))
}

func TestQuoteNotFoundIsErrNoQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Quote(context.Background(), "sushiswap", "DAI", "WBTC", decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, domain.ErrNoQuote))
}

func TestPairsBuildsHops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pairs", r.URL.Path)
		w.Write([]byte(`{"pairs":[
			{"venue":"uniswap_v3","token_in":"WETH","token_out":"USDC"},
			{"venue":"sushiswap","token_in":"USDC","token_out":"WETH"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	hops, err := c.Pairs(context.Background())
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, domain.Hop{Venue: "uniswap_v3", TokenIn: "WETH", TokenOut: "USDC"}, hops[0])
	assert.Equal(t, domain.Hop{Venue: "sushiswap", TokenIn: "USDC", TokenOut: "WETH"}, hops[1])
}

func TestDepthParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/depth", r.URL.Path)
		assert.Equal(t, "WETH/USDC", r.URL.Query().Get("pair"))
		w.Write([]byte(`{"mid_price":"2990.10","bid_depth":"1500000","ask_depth":"900000","block":123456}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	snap, err := c.Depth(context.Background(), "uniswap_v3", "WETH/USDC")
	require.NoError(t, err)
	assert.Equal(t, "uniswap_v3", snap.Venue)
	assert.Equal(t, "WETH/USDC", snap.Pair)
	assert.True(t, snap.MidPrice.Equal(decimal.RequireFromString("2990.10")))
	assert.True(t, snap.BidDepth.Equal(decimal.NewFromInt(1_500_000)))
	assert.True(t, snap.AskDepth.Equal(decimal.NewFromInt(900_000)))
	assert.Equal(t, uint64(123456), snap.Block)
}

func TestDepthServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Depth(context.Background(), "uniswap_v3", "WETH/USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}
