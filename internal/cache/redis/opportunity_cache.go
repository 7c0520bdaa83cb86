package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// OpportunityCache implements domain.OpportunityCache using plain Redis keys
// with a TTL. The key is the canonical path string, the value the highest net
// profit seen for that path within the window. It gives multiple engine
// processes, and a restarted process, shared dedup visibility.
type OpportunityCache struct {
	rdb *redis.Client
}

// NewOpportunityCache creates an OpportunityCache backed by the given Client.
func NewOpportunityCache(c *Client) *OpportunityCache {
	return &OpportunityCache{rdb: c.Underlying()}
}

func oppKey(pathKey string) string {
	return "opp:" + pathKey
}

// Remember records the net profit seen for a path. An existing entry is only
// overwritten by a higher net so the window always reflects the best
// duplicate.
func (oc *OpportunityCache) Remember(ctx context.Context, pathKey string, netUSD decimal.Decimal, ttl time.Duration) error {
	prev, found, err := oc.RecentNet(ctx, pathKey)
	if err != nil {
		return err
	}
	if found && prev.GreaterThanOrEqual(netUSD) {
		return nil
	}
	if err := oc.rdb.Set(ctx, oppKey(pathKey), netUSD.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis: remember opportunity %s: %w", pathKey, err)
	}
	return nil
}

// RecentNet returns the highest net profit recorded for a path within the
// window, and whether any entry exists.
func (oc *OpportunityCache) RecentNet(ctx context.Context, pathKey string) (decimal.Decimal, bool, error) {
	val, err := oc.rdb.Get(ctx, oppKey(pathKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("redis: recent net %s: %w", pathKey, err)
	}
	net, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis: parse recent net %s: %w", pathKey, err)
	}
	return net, true, nil
}

// Compile-time interface check.
var _ domain.OpportunityCache = (*OpportunityCache)(nil)
