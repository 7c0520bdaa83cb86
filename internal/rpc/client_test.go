package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// fakeConn scripts one endpoint's behavior.
type fakeConn struct {
	calls   int
	handler func(call int, result any, method string) error
}

func (f *fakeConn) CallContext(_ context.Context, result any, method string, _ ...any) error {
	f.calls++
	return f.handler(f.calls, result, method)
}

func (f *fakeConn) Close() {}

// rpcAppError satisfies gethrpc.Error to simulate a JSON-RPC level failure.
type rpcAppError struct{ msg string }

func (e rpcAppError) Error() string  { return e.msg }
func (e rpcAppError) ErrorCode() int { return 3 }

func newTestClient(t *testing.T, cfg ClientConfig, conns map[string]*fakeConn) *Client {
	t.Helper()
	var eps []domain.Endpoint
	prio := 1
	for _, url := range []string{"https://ep1", "https://ep2", "https://ep3"} {
		if _, ok := conns[url]; ok {
			eps = append(eps, domain.Endpoint{Chain: domain.ChainArbitrum, URL: url, Priority: prio})
		}
		prio++
	}
	pool, err := NewEndpointPool(eps)
	require.NoError(t, err)
	breaker := NewBreaker(BreakerConfig{FailureThreshold: 3, CoolDown: 30 * time.Second}, discardLogger())
	client := NewClient(pool, breaker, cfg, discardLogger())
	client.dial = func(_ context.Context, url string) (conn, error) {
		return conns[url], nil
	}
	return client
}

func TestCallFirstEndpointSucceeds(t *testing.T) {
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(_ int, result any, _ string) error {
			*(result.(*hexutil.Uint64)) = hexutil.Uint64(42)
			return nil
		}},
		"https://ep2": {handler: func(int, any, string) error {
			t.Fatal("second endpoint must not be called")
			return nil
		}},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 2}, conns)

	n, err := client.BlockNumber(context.Background(), domain.ChainArbitrum)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

func TestCallFallsThroughToNextEndpoint(t *testing.T) {
	boom := errors.New("connection refused")
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(int, any, string) error { return boom }},
		"https://ep2": {handler: func(_ int, result any, _ string) error {
			*(result.(*hexutil.Uint64)) = hexutil.Uint64(7)
			return nil
		}},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 2, BackoffBase: time.Millisecond}, conns)

	n, err := client.BlockNumber(context.Background(), domain.ChainArbitrum)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
	assert.Equal(t, 2, conns["https://ep1"].calls, "retry budget on the failing endpoint is bounded")
}

func TestCallOpensBreakerAndRoutesAround(t *testing.T) {
	boom := errors.New("timeout")
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(int, any, string) error { return boom }},
		"https://ep2": {handler: func(_ int, result any, _ string) error {
			*(result.(*hexutil.Uint64)) = hexutil.Uint64(1)
			return nil
		}},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, conns)

	// First call: three failed attempts on ep1 open its breaker, then ep2.
	_, err := client.BlockNumber(context.Background(), domain.ChainArbitrum)
	require.NoError(t, err)
	require.Equal(t, 3, conns["https://ep1"].calls)

	// Second call: ep1 is short-circuited without a network attempt.
	_, err = client.BlockNumber(context.Background(), domain.ChainArbitrum)
	require.NoError(t, err)
	assert.Equal(t, 3, conns["https://ep1"].calls, "open breaker must fail fast")
	assert.Equal(t, 2, conns["https://ep2"].calls)
}

func TestCallAllEndpointsExhausted(t *testing.T) {
	boom := errors.New("unreachable")
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(int, any, string) error { return boom }},
		"https://ep2": {handler: func(int, any, string) error { return boom }},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 1}, conns)

	_, err := client.BlockNumber(context.Background(), domain.ChainArbitrum)
	require.ErrorIs(t, err, domain.ErrAllEndpointsExhausted)
}

func TestCallApplicationErrorIsNotEndpointFault(t *testing.T) {
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(int, any, string) error {
			return rpcAppError{msg: "execution reverted"}
		}},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 3}, conns)

	var out hexutil.Uint64
	err := client.Call(context.Background(), domain.ChainArbitrum, &out, "eth_call")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrAllEndpointsExhausted)
	assert.Equal(t, 1, conns["https://ep1"].calls, "application errors are not retried")
	assert.Equal(t, StateClosed, client.breaker.State("arbitrum|https://ep1"))
}

func TestCallCancellationDuringBackoffCountsNoPhantomFailure(t *testing.T) {
	boom := errors.New("timeout")
	ctx, cancel := context.WithCancel(context.Background())
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(int, any, string) error {
			cancel() // cancel while the client is about to back off
			return boom
		}},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 5, BackoffBase: time.Hour}, conns)

	var out hexutil.Uint64
	err := client.Call(ctx, domain.ChainArbitrum, &out, "eth_blockNumber")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, conns["https://ep1"].calls, "no further attempts after cancellation")

	health := client.Health()
	require.Len(t, health, 1)
	assert.Equal(t, 0, health[0].Failures, "a cancelled call is not held against the endpoint")
	assert.Equal(t, StateClosed, client.breaker.State("arbitrum|https://ep1"))
}

func TestCallCancellationDuringDialCountsNoPhantomFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(int, any, string) error {
			t.Fatal("a failed dial must never reach the endpoint")
			return nil
		}},
	}
	client := newTestClient(t, ClientConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}, conns)
	client.dial = func(dialCtx context.Context, _ string) (conn, error) {
		cancel() // cancel while the dial is in flight
		return nil, dialCtx.Err()
	}

	var out hexutil.Uint64
	err := client.Call(ctx, domain.ChainArbitrum, &out, "eth_blockNumber")
	require.ErrorIs(t, err, context.Canceled)

	health := client.Health()
	require.Len(t, health, 1)
	assert.Equal(t, 0, health[0].Failures, "a cancelled dial is not held against the endpoint")
	assert.Equal(t, StateClosed, client.breaker.State("arbitrum|https://ep1"))
}

func TestGasPriceGwei(t *testing.T) {
	conns := map[string]*fakeConn{
		"https://ep1": {handler: func(_ int, result any, method string) error {
			require.Equal(t, "eth_gasPrice", method)
			b := hexutil.Big{}
			require.NoError(t, b.UnmarshalText([]byte("0x3b9aca00"))) // 1 gwei in wei
			*(result.(*hexutil.Big)) = b
			return nil
		}},
	}
	client := newTestClient(t, ClientConfig{}, conns)

	gwei, err := client.GasPriceGwei(context.Background(), domain.ChainArbitrum)
	require.NoError(t, err)
	assert.True(t, gwei.Equal(decimal.NewFromInt(1)), "1 gwei expected, got %s", gwei)
}
