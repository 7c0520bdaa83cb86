package domain

import "errors"

var (
	// ErrAllEndpointsExhausted means every configured endpoint for a chain
	// was either circuit-open or failed. Callers treat it as "no chain access
	// this cycle", never as fatal.
	ErrAllEndpointsExhausted = errors.New("all endpoints exhausted")
	// ErrCircuitOpen marks a single endpoint skipped because its breaker is
	// open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrNoEndpoints means a chain has no configured endpoints at all. This
	// is a configuration error and fatal at startup.
	ErrNoEndpoints = errors.New("no endpoints configured")
	// ErrMalformed means the endpoint answered but the response could not be
	// decoded.
	ErrMalformed = errors.New("malformed rpc response")

	ErrStaleOpportunity = errors.New("opportunity is stale")
	ErrPlanInfeasible   = errors.New("no profitable plan under any capital source")
	ErrNoQuote          = errors.New("no quote available")
	ErrNotFound         = errors.New("not found")
	ErrLockHeld         = errors.New("lock already held")
	ErrContextDone      = errors.New("context cancelled")
)
