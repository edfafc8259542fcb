// Package cache provides a read-through cache with an in-process expiring
// LRU in front of an optional shared Redis tier.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
)

// Loader fetches the authoritative value on a miss
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Tiered caches JSON-serializable values under a name-spaced key
type Tiered[V any] struct {
	name    string
	l1      *lru.LRU[string, V]
	redis   *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *observability.Logger
}

// Options configures a Tiered cache. Redis may be nil.
type Options struct {
	Size    int
	TTL     time.Duration
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *observability.Logger
}

// New creates a cache named name
func New[V any](name string, opts Options) *Tiered[V] {
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	return &Tiered[V]{
		name:    name,
		l1:      lru.NewLRU[string, V](opts.Size, nil, opts.TTL),
		redis:   opts.Redis,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

func (c *Tiered[V]) redisKey(key string) string {
	return fmt.Sprintf("grc:cache:%s:%s", c.name, key)
}

// Get returns the cached value for key, calling load on a miss. Redis
// failures are logged and bypassed.
func (c *Tiered[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	if v, ok := c.l1.Get(key); ok {
		c.metrics.CacheHit(c.name, "l1")
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.getRedis(ctx, key); ok {
			c.metrics.CacheHit(c.name, "l2")
			c.l1.Add(key, v)
			return v, nil
		}

		c.metrics.CacheMiss(c.name)
		v, err := load(ctx, key)
		if err != nil {
			return v, err
		}
		c.l1.Add(key, v)
		c.setRedis(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Invalidate drops key from both tiers
func (c *Tiered[V]) Invalidate(ctx context.Context, key string) {
	c.l1.Remove(key)
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.redisKey(key)).Err(); err != nil {
		c.warn(err, "cache invalidate failed")
	}
}

func (c *Tiered[V]) getRedis(ctx context.Context, key string) (V, bool) {
	var v V
	if c.redis == nil {
		return v, false
	}
	data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.warn(err, "cache read failed")
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.redis.Del(ctx, c.redisKey(key))
		return v, false
	}
	return v, true
}

func (c *Tiered[V]) setRedis(ctx context.Context, key string, v V) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.redisKey(key), data, c.ttl).Err(); err != nil {
		c.warn(err, "cache write failed")
	}
}

func (c *Tiered[V]) warn(err error, msg string) {
	if c.logger != nil {
		c.logger.WithError(err).WithField("cache", c.name).Warn(msg)
	}
}
