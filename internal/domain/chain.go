package domain

import "fmt"

// ChainID identifies a blockchain network the engine can read from.
type ChainID string

// Chains the engine ships endpoint presets for. Additional chains can be
// configured without code changes; these constants only name the common ones.
const (
	ChainArbitrum ChainID = "arbitrum"
	ChainEthereum ChainID = "ethereum"
	ChainPolygon  ChainID = "polygon"
	ChainOptimism ChainID = "optimism"
	ChainBase     ChainID = "base"
)

// Endpoint is one candidate RPC endpoint for a chain. Endpoints are immutable
// once loaded; health is tracked separately by the circuit breaker, keyed by
// Key().
type Endpoint struct {
	Chain    ChainID
	URL      string
	Priority int  // lower tries first; equal priorities round-robin
	Public   bool // free/public endpoint vs. vendor endpoint with credentials
}

// Key returns the identity used for per-endpoint circuit state.
func (e Endpoint) Key() string {
	return string(e.Chain) + "|" + e.URL
}

// String returns a short human-readable form without leaking credentialed URLs
// beyond the host.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s p%d %s", e.Chain, e.Priority, e.URL)
}
