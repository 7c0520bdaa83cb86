package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/domain"
)

func TestNewEndpointPoolRejectsEmpty(t *testing.T) {
	_, err := NewEndpointPool(nil)
	require.ErrorIs(t, err, domain.ErrNoEndpoints)
}

func TestSelectOrdersByPriority(t *testing.T) {
	pool, err := NewEndpointPool([]domain.Endpoint{
		{Chain: domain.ChainArbitrum, URL: "https://c", Priority: 3, Public: true},
		{Chain: domain.ChainArbitrum, URL: "https://a", Priority: 1},
		{Chain: domain.ChainArbitrum, URL: "https://b", Priority: 2, Public: true},
	})
	require.NoError(t, err)

	eps, err := pool.Select(domain.ChainArbitrum)
	require.NoError(t, err)
	require.Len(t, eps, 3)
	assert.Equal(t, "https://a", eps[0].URL)
	assert.Equal(t, "https://b", eps[1].URL)
	assert.Equal(t, "https://c", eps[2].URL)
}

func TestSelectUnknownChain(t *testing.T) {
	pool, err := NewEndpointPool([]domain.Endpoint{
		{Chain: domain.ChainArbitrum, URL: "https://a", Priority: 1},
	})
	require.NoError(t, err)

	_, err = pool.Select(domain.ChainBase)
	require.ErrorIs(t, err, domain.ErrNoEndpoints)
}

func TestSelectRoundRobinsEqualPriority(t *testing.T) {
	pool, err := NewEndpointPool([]domain.Endpoint{
		{Chain: domain.ChainEthereum, URL: "https://a", Priority: 1},
		{Chain: domain.ChainEthereum, URL: "https://b", Priority: 1},
		{Chain: domain.ChainEthereum, URL: "https://z", Priority: 9},
	})
	require.NoError(t, err)

	first, err := pool.Select(domain.ChainEthereum)
	require.NoError(t, err)
	second, err := pool.Select(domain.ChainEthereum)
	require.NoError(t, err)

	// The equal-priority pair rotates between calls; the lower-priority
	// endpoint stays last.
	assert.Equal(t, "https://z", first[2].URL)
	assert.Equal(t, "https://z", second[2].URL)
	assert.NotEqual(t, first[0].URL, second[0].URL)
	assert.ElementsMatch(t,
		[]string{first[0].URL, first[1].URL},
		[]string{"https://a", "https://b"},
	)
}
