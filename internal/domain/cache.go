package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GasCache holds the most recent gas price observation per chain. The
// coordinator reads through it during revalidation so a burst of concurrent
// opportunities does not hammer the RPC layer; entries carry a short TTL.
type GasCache interface {
	SetGasPrice(ctx context.Context, chain ChainID, gweiPrice decimal.Decimal, ts time.Time) error
	GetGasPrice(ctx context.Context, chain ChainID) (decimal.Decimal, time.Time, error)
}

// OpportunityCache records recently seen opportunity paths so multiple engine
// processes (or a restart within the dedup window) share dedup visibility.
// A best-effort collaborator: cache errors never block the pipeline.
type OpportunityCache interface {
	Remember(ctx context.Context, pathKey string, netUSD decimal.Decimal, ttl time.Duration) error
	RecentNet(ctx context.Context, pathKey string) (decimal.Decimal, bool, error)
}

// LockManager provides distributed mutual exclusion. The engine uses it to
// guarantee a single live trading consumer when several processes share one
// wallet.
type LockManager interface {
	// Acquire obtains the named lock for ttl and returns its release
	// function, or ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
