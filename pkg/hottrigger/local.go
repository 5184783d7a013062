package hottrigger

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
	"github.com/Thelastpoet/Sentinel/pkg/observability/metrics"
)

// LocalCache keeps the hot-trigger set in process memory. Used when no
// Redis is configured; same admission rules, same miss-only failure mode.
type LocalCache struct {
	store    *gocache.Cache
	ttl      time.Duration
	snapshot func() *lexicon.Snapshot
}

// NewLocalCache builds an in-process hot-trigger cache. A zero TTL keeps
// primed releases until eviction.
func NewLocalCache(ttl time.Duration, snapshot func() *lexicon.Snapshot) *LocalCache {
	expiry := ttl
	if expiry <= 0 {
		expiry = gocache.NoExpiration
	}
	return &LocalCache{
		store:    gocache.New(expiry, 10*time.Minute),
		ttl:      ttl,
		snapshot: snapshot,
	}
}

type localSet map[string]lexicon.Entry

func (c *LocalCache) primed(version string) localSet {
	if cached, ok := c.store.Get(version); ok {
		if set, ok := cached.(localSet); ok {
			return set
		}
	}
	if c.snapshot == nil {
		return nil
	}
	snap := c.snapshot()
	if snap == nil || snap.Version != version {
		return nil
	}
	set := make(localSet)
	for _, entry := range snap.ActiveEntries() {
		if eligible(entry) {
			set[triggerToken(entry)] = entry
		}
	}
	c.store.Set(version, set, c.ttl)
	return set
}

// Lookup implements Cache.
func (c *LocalCache) Lookup(_ context.Context, version string, norm *normalize.Result) []lexicon.Entry {
	set := c.primed(version)
	if len(set) == 0 {
		metrics.HotTriggerLookups.WithLabelValues("miss").Inc()
		return nil
	}
	var matches []lexicon.Entry
	for _, token := range dedupeTokens(norm.TokenTexts()) {
		if entry, ok := set[token]; ok {
			matches = append(matches, entry)
		}
	}
	if len(matches) > 0 {
		metrics.HotTriggerLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.HotTriggerLookups.WithLabelValues("miss").Inc()
	}
	return matches
}
