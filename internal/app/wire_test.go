package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevanbtc/apexarb/internal/config"
	"github.com/kevanbtc/apexarb/internal/domain"
	"github.com/kevanbtc/apexarb/internal/rpc"
)

func TestEndpointsFromConfigLowercasesChainNames(t *testing.T) {
	chains := []config.ChainConfig{{
		Name:      "Arbitrum",
		UsePublic: true,
		Endpoints: []config.EndpointConfig{{URL: "https://arb.example.com", Priority: 1}},
	}}

	endpoints, err := endpointsFromConfig(chains)
	require.NoError(t, err)
	require.Greater(t, len(endpoints), 1, "public presets expected behind the vendor endpoint")
	for _, ep := range endpoints {
		assert.Equal(t, domain.ChainArbitrum, ep.Chain)
	}

	// The pool must answer lookups under the lowercase identifier, which is
	// what strategies and the wallet derive from the configured name.
	pool, err := rpc.NewEndpointPool(endpoints)
	require.NoError(t, err)
	selected, err := pool.Select(domain.ChainArbitrum)
	require.NoError(t, err)
	require.Len(t, selected, len(endpoints))
	assert.Equal(t, "https://arb.example.com", selected[0].URL, "vendor endpoint tries before the presets")
}

func TestEndpointsFromConfigRequiresEndpoints(t *testing.T) {
	_, err := endpointsFromConfig([]config.ChainConfig{{Name: "arbitrum"}})
	require.ErrorIs(t, err, domain.ErrNoEndpoints)
}
