package resultcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
)

// LocalCache is the in-process fallback used when no Redis is configured.
type LocalCache struct {
	store *gocache.Cache
}

// NewLocalCache builds a TTL-bound in-process cache.
func NewLocalCache(ttl time.Duration) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalCache{store: gocache.New(ttl, 2*ttl)}
}

// Get implements Cache. Cached decisions are stored encoded so a hit can
// never alias a decision still held by another caller.
func (c *LocalCache) Get(_ context.Context, key string) *moderation.Decision {
	raw, ok := c.store.Get(key)
	if !ok {
		recordLookup(false)
		return nil
	}
	data, ok := raw.([]byte)
	if !ok {
		recordLookup(false)
		return nil
	}
	decision := decode(data)
	recordLookup(decision != nil)
	return decision
}

// Set implements Cache.
func (c *LocalCache) Set(_ context.Context, key string, decision *moderation.Decision) {
	data, err := encode(decision)
	if err != nil {
		return
	}
	c.store.SetDefault(key, data)
}
