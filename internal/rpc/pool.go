// Package rpc provides the resilient multi-endpoint chain access layer: an
// ordered endpoint pool per chain, a per-endpoint circuit breaker, and a
// client that retries with backoff and falls through endpoints in priority
// order. It is the sole way any component talks to a chain.
package rpc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// EndpointPool holds the ordered candidate endpoints per chain. The pool only
// decides candidacy order, never health; configuration is static for the
// process lifetime.
type EndpointPool struct {
	byChain map[domain.ChainID][]domain.Endpoint

	// rotation offsets per chain for round-robin among equal priorities.
	mu  sync.Mutex
	rot map[domain.ChainID]int
}

// NewEndpointPool builds a pool from the configured endpoints. It returns an
// error when a chain would end up with no endpoints, which is fatal at
// startup per the engine's error policy.
func NewEndpointPool(endpoints []domain.Endpoint) (*EndpointPool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("rpc: %w", domain.ErrNoEndpoints)
	}

	byChain := make(map[domain.ChainID][]domain.Endpoint)
	for _, ep := range endpoints {
		if ep.URL == "" {
			return nil, fmt.Errorf("rpc: endpoint for chain %s has empty url", ep.Chain)
		}
		byChain[ep.Chain] = append(byChain[ep.Chain], ep)
	}
	for chain, eps := range byChain {
		sort.SliceStable(eps, func(i, j int) bool { return eps[i].Priority < eps[j].Priority })
		byChain[chain] = eps
	}

	return &EndpointPool{
		byChain: byChain,
		rot:     make(map[domain.ChainID]int),
	}, nil
}

// Chains returns every chain the pool has endpoints for.
func (p *EndpointPool) Chains() []domain.ChainID {
	out := make([]domain.ChainID, 0, len(p.byChain))
	for chain := range p.byChain {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every configured endpoint, for health reporting.
func (p *EndpointPool) All() []domain.Endpoint {
	var out []domain.Endpoint
	for _, chain := range p.Chains() {
		out = append(out, p.byChain[chain]...)
	}
	return out
}

// Select returns the ordered candidate list for a chain: priority ascending,
// with endpoints sharing a priority rotated round-robin so equal-priority
// endpoints share load across calls. Returns domain.ErrNoEndpoints for an
// unconfigured chain.
func (p *EndpointPool) Select(chain domain.ChainID) ([]domain.Endpoint, error) {
	eps, ok := p.byChain[chain]
	if !ok || len(eps) == 0 {
		return nil, fmt.Errorf("rpc: chain %s: %w", chain, domain.ErrNoEndpoints)
	}

	p.mu.Lock()
	offset := p.rot[chain]
	p.rot[chain]++
	p.mu.Unlock()

	out := make([]domain.Endpoint, 0, len(eps))
	for i := 0; i < len(eps); {
		// Find the group sharing eps[i].Priority.
		j := i + 1
		for j < len(eps) && eps[j].Priority == eps[i].Priority {
			j++
		}
		group := eps[i:j]
		for k := 0; k < len(group); k++ {
			out = append(out, group[(offset+k)%len(group)])
		}
		i = j
	}
	return out, nil
}
