package check

import (
	"context"
	"time"

	"ordercheck-bot-backend/internal/common/logger"
	"ordercheck-bot-backend/internal/platform/redis"
)

const orderCacheKeyPrefix = "order_cache:"

// CachedOrders is the rendered reply for one cookie, kept hot so a repeated
// paste inside the window costs nothing upstream.
type CachedOrders struct {
	Outcome  string    `json:"outcome"`
	Rendered string    `json:"rendered"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache stores rendered order results per raw cookie string.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, cookie string) (*CachedOrders, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	var cached CachedOrders
	ok, err := c.rdb.GetJSON(ctx, orderCacheKeyPrefix+cookie, &cached)
	if err != nil {
		logger.Warn().Err(err).Msg("Order cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &cached, true
}

func (c *Cache) Set(ctx context.Context, cookie string, cached *CachedOrders) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.SetJSON(ctx, orderCacheKeyPrefix+cookie, cached, c.ttl); err != nil {
		logger.Warn().Err(err).Msg("Order cache write failed")
	}
}
