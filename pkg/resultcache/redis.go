package resultcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

// DefaultRedisTimeout bounds each cache round trip.
const DefaultRedisTimeout = 10 * time.Millisecond

// RedisCache shares decisions across replicas.
type RedisCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	URL string
	// TTL defaults to DefaultTTL, Timeout to DefaultRedisTimeout.
	TTL     time.Duration
	Timeout time.Duration
}

// NewRedisCache connects the cache. Connection problems surface later as
// misses, not here.
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	return &RedisCache{
		client:  redis.NewClient(redisOpts),
		ttl:     ttl,
		timeout: timeout,
	}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) *moderation.Decision {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Debugf("result cache read failed: %v", err)
		}
		recordLookup(false)
		return nil
	}
	decision := decode(data)
	recordLookup(decision != nil)
	return decision
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, decision *moderation.Decision) {
	data, err := encode(decision)
	if err != nil {
		logging.Debugf("result cache write skipped: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logging.Debugf("result cache write failed: %v", err)
	}
}
