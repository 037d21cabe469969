package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yumenosora/otakudb-backend/internal/platform/envutil"
	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

// TTL tiers by query volatility: filterable listing/search results churn
// fastest, single-item detail payloads are steadier, aggregates barely move.
const (
	TTLSearch    = 5 * time.Minute
	TTLDetail    = 30 * time.Minute
	TTLAggregate = 24 * time.Hour
)

// Cache is the key-value store for precomputed response payloads. Get is
// fail-open: any store error reads as a miss so callers always fall through
// to computing fresh data.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelByPattern(ctx context.Context, pattern string) (int, error)
	Close() error
}

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewCache(log *logger.Logger) (Cache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(envutil.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.GetEnv("REDIS_PASSWORD", "", nil),
		DB:          envutil.GetEnvAsInt("REDIS_DB", 0, nil),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisCache{log: log.With("service", "RedisCache"), rdb: rdb}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return raw, true
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (c *redisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// DelByPattern walks the keyspace with SCAN rather than KEYS so a large
// invalidation does not stall the store.
func (c *redisCache) DelByPattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %q: %w", pattern, err)
		}
		if len(batch) > 0 {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return deleted, fmt.Errorf("del batch for %q: %w", pattern, err)
			}
			deleted += len(batch)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (c *redisCache) Close() error { return c.rdb.Close() }

// GetOrCompute is the read-through convention: check the cache, on a miss run
// compute and store the result under the caller's TTL. A failed store write
// is not an error; the computed value is still returned.
func GetOrCompute(ctx context.Context, c Cache, key string, ttl time.Duration, compute func() ([]byte, error)) ([]byte, error) {
	if c != nil {
		if cached, ok := c.Get(ctx, key); ok {
			return cached, nil
		}
	}
	value, err := compute()
	if err != nil {
		return nil, err
	}
	if c != nil {
		_ = c.Set(ctx, key, value, ttl)
	}
	return value, nil
}
