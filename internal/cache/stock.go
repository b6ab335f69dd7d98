package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultStockTTL bounds how stale a cached stock read can be.
const DefaultStockTTL = 5 * time.Second

// StockCache keeps recent product stock reads in Redis. It only serves display reads;
// reservations always go to the database.
type StockCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStockCache(rdb *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = DefaultStockTTL
	}
	return &StockCache{rdb: rdb, ttl: ttl}
}

func stockKey(productID int64) string {
	return fmt.Sprintf("product:%d:stock", productID)
}

// Get returns the cached stock of a product. ok is false on a miss.
func (c *StockCache) Get(ctx context.Context, productID int64) (stock int, ok bool, err error) {
	stock, err = c.rdb.Get(ctx, stockKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

func (c *StockCache) Set(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey(productID), stock, c.ttl).Err()
}
