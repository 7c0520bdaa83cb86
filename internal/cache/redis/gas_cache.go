package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// gasKeyTTL bounds how long a stale gas observation can linger; freshness
// within the TTL is the reader's decision.
const gasKeyTTL = time.Minute

// GasCache implements domain.GasCache using Redis hashes. Each chain's gas
// price is stored at key "gas:{chain}" with fields "gwei" and "ts" (Unix
// nanosecond timestamp).
type GasCache struct {
	rdb *redis.Client
}

// NewGasCache creates a GasCache backed by the given Client.
func NewGasCache(c *Client) *GasCache {
	return &GasCache{rdb: c.Underlying()}
}

func gasKey(chain domain.ChainID) string {
	return "gas:" + string(chain)
}

// SetGasPrice stores the latest gas observation for a chain.
func (gc *GasCache) SetGasPrice(ctx context.Context, chain domain.ChainID, gweiPrice decimal.Decimal, ts time.Time) error {
	key := gasKey(chain)
	fields := map[string]interface{}{
		"gwei": gweiPrice.String(),
		"ts":   strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := gc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, gasKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set gas price %s: %w", chain, err)
	}
	return nil
}

// GetGasPrice retrieves the latest gas observation for a chain. It returns
// domain.ErrNotFound when no observation exists.
func (gc *GasCache) GetGasPrice(ctx context.Context, chain domain.ChainID) (decimal.Decimal, time.Time, error) {
	vals, err := gc.rdb.HGetAll(ctx, gasKey(chain)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get gas price %s: %w", chain, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	gweiStr, ok := vals["gwei"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	gwei, err := decimal.NewFromString(gweiStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse gas price %s: %w", chain, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse gas ts %s: %w", chain, err)
	}

	return gwei, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.GasCache = (*GasCache)(nil)
