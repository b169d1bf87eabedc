package infra

// balance_cache.go — read-through cache for account balances. Balances are
// read on every POS screen refresh but written only on movements, so a short
// TTL plus explicit invalidation on writes keeps reads off the database
// without risking a stale balance after a movement.

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"posledger/internal/service"
)

const balanceKeyPrefix = "account:balance:"

// BalanceCache caches account balances in Redis keyed by customer ID.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ service.BalanceCache = (*BalanceCache)(nil)

func NewBalanceCache(rdb *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

func (c *BalanceCache) Get(ctx context.Context, customerID string) (decimal.Decimal, bool) {
	val, err := c.rdb.Get(ctx, balanceKeyPrefix+customerID).Result()
	if err != nil {
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		log.Warn().Str("customer_id", customerID).Str("value", val).Msg("balance cache: corrupt entry, dropping")
		c.Invalidate(ctx, customerID)
		return decimal.Zero, false
	}
	return balance, true
}

func (c *BalanceCache) Set(ctx context.Context, customerID string, balance decimal.Decimal) {
	if err := c.rdb.Set(ctx, balanceKeyPrefix+customerID, balance.String(), c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Msg("balance cache: set failed")
	}
}

func (c *BalanceCache) Invalidate(ctx context.Context, customerID string) {
	if err := c.rdb.Del(ctx, balanceKeyPrefix+customerID).Err(); err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Msg("balance cache: invalidate failed")
	}
}
