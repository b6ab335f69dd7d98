package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Header carries the client-chosen key that de-duplicates order placement.
const Header = "Idempotency-Key"

const DefaultTTL = 24 * time.Hour

// Store claims idempotency keys in Redis.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func redisKey(scope, key string) string {
	return fmt.Sprintf("idempotency-key:%s:%s", scope, key)
}

// Claim reserves key within scope. It reports false when the key was already claimed.
func (s *Store) Claim(ctx context.Context, scope, key string) (bool, error) {
	return s.rdb.SetNX(ctx, redisKey(scope, key), "exists", s.ttl).Result()
}

// Forget releases a claim so the client may retry with the same key.
func (s *Store) Forget(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, redisKey(scope, key)).Err()
}
