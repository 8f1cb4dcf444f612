package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
)

// MemoryCache keeps quotes in process, bounded by size. bigcache evicts
// lazily, so reads also compare the quote's age with the ttl.
type MemoryCache struct {
	cache *bigcache.BigCache
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryCache(ctx context.Context, ttl time.Duration, maxMB int) (*MemoryCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = ttl
	cfg.HardMaxCacheSize = maxMB
	cfg.Verbose = false
	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init quote cache: %w", err)
	}
	return &MemoryCache{cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *MemoryCache) Get(_ context.Context, symbol string) (Quote, bool, error) {
	raw, err := c.cache.Get(symbol)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false, err
	}
	if c.now().Sub(q.At) >= c.ttl {
		return Quote{}, false, nil
	}
	return q, true, nil
}

func (c *MemoryCache) Set(_ context.Context, q Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.cache.Set(q.Symbol, raw)
}

func (c *MemoryCache) Close() error {
	return c.cache.Close()
}

// RedisCache shares quotes between instances. Keys expire server side.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "tradedesk:quote:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (Quote, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+symbol).Bytes()
	if errors.Is(err, redis.Nil) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("redis get quote: %w", err)
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false, err
	}
	return q, true, nil
}

func (c *RedisCache) Set(ctx context.Context, q Quote) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+q.Symbol, raw, c.ttl).Err()
}
