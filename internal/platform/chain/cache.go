package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultCacheTTL bounds how stale a cached access answer may be. Access
// checks tolerate short staleness; grants and revokes invalidate eagerly.
const DefaultCacheTTL = 30 * time.Second

// AccessCache caches confirmed HasAccess answers in Redis. A nil Redis client
// disables the cache, every lookup is then a miss.
type AccessCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAccessCache creates a cache with the given TTL. Pass 0 for the default.
func NewAccessCache(rdb *redis.Client, ttl time.Duration) *AccessCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &AccessCache{rdb: rdb, ttl: ttl}
}

func accessKey(tokenID, address string) string {
	return fmt.Sprintf("access:%s:%s", tokenID, strings.ToLower(address))
}

// Get returns the cached answer and whether one was present.
func (c *AccessCache) Get(ctx context.Context, tokenID, address string) (bool, bool) {
	if c == nil || c.rdb == nil {
		return false, false
	}
	val, err := c.rdb.Get(ctx, accessKey(tokenID, address)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Set stores an access answer under the cache TTL.
func (c *AccessCache) Set(ctx context.Context, tokenID, address string, hasAccess bool) {
	if c == nil || c.rdb == nil {
		return
	}
	val := "0"
	if hasAccess {
		val = "1"
	}
	c.rdb.Set(ctx, accessKey(tokenID, address), val, c.ttl)
}

// Invalidate removes the cached answer for one grantee.
func (c *AccessCache) Invalidate(ctx context.Context, tokenID, address string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, accessKey(tokenID, address))
}

// InvalidateToken removes every cached answer for a token. Used when the
// record itself is burned.
func (c *AccessCache) InvalidateToken(ctx context.Context, tokenID string) error {
	if c == nil || c.rdb == nil {
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("access:%s:*", tokenID), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("chain: invalidate token cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("chain: scan token cache: %w", err)
	}
	return nil
}
