// Package hottrigger short-circuits known high-severity terms before the
// full matcher runs. The cache holds only single-token BLOCK entries of
// severity 3 or higher, keyed per lexicon release so two releases can never
// mix. Every failure mode degrades to a miss: the full matcher still runs,
// so the cache can only improve latency, never correctness.
package hottrigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
	"github.com/Thelastpoet/Sentinel/pkg/observability/metrics"
)

const (
	// MinSeverity is the severity floor for cache admission.
	MinSeverity = 3

	// DefaultTimeout bounds each cache round-trip. The cache sits on the
	// hot path, so a slow cache must lose to the full matcher, not stall it.
	DefaultTimeout = 5 * time.Millisecond

	defaultKeyPrefix = "sentinel:hot-triggers"
)

// Cache is the lookup contract consumed by the pipeline.
type Cache interface {
	// Lookup returns the entries whose trigger token appears in the
	// normalized text. A failed or unavailable backend returns an empty
	// slice and no error: misses are always safe.
	Lookup(ctx context.Context, version string, norm *normalize.Result) []lexicon.Entry
}

type cachedEntry struct {
	Term       string `json:"term"`
	Action     string `json:"action"`
	Label      string `json:"label"`
	ReasonCode string `json:"reason_code"`
	Severity   int    `json:"severity"`
	Lang       string `json:"lang"`
}

// eligible reports whether an entry may enter the hot-trigger set.
func eligible(e lexicon.Entry) bool {
	if e.Action != "BLOCK" || e.Severity < MinSeverity {
		return false
	}
	return len(normalize.Normalize(e.Term).Tokens) == 1
}

func triggerToken(e lexicon.Entry) string {
	toks := normalize.Normalize(e.Term).TokenTexts()
	if len(toks) != 1 {
		return ""
	}
	return toks[0]
}

func serialize(e lexicon.Entry) (string, error) {
	raw, err := json.Marshal(cachedEntry{
		Term:       e.Term,
		Action:     string(e.Action),
		Label:      string(e.Label),
		ReasonCode: e.ReasonCode,
		Severity:   e.Severity,
		Lang:       e.Lang,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func deserialize(raw string) (lexicon.Entry, bool) {
	var c cachedEntry
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return lexicon.Entry{}, false
	}
	if c.Term == "" || c.ReasonCode == "" || c.Action != string(moderation.ActionBlock) {
		return lexicon.Entry{}, false
	}
	return lexicon.Entry{
		Term:       c.Term,
		Action:     moderation.Action(c.Action),
		Label:      moderation.Label(c.Label),
		ReasonCode: c.ReasonCode,
		Severity:   c.Severity,
		Lang:       c.Lang,
	}, true
}

// RedisCache backs the hot-trigger set with one Redis hash per release.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	timeout   time.Duration
	ttl       time.Duration
	snapshot  func() *lexicon.Snapshot
}

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	// URL is a redis connection URL (redis://...).
	URL string
	// KeyPrefix defaults to "sentinel:hot-triggers".
	KeyPrefix string
	// Timeout bounds each round-trip; zero means DefaultTimeout.
	Timeout time.Duration
	// TTL expires primed hashes; zero means no expiry.
	TTL time.Duration
}

// NewRedisCache connects to Redis. The snapshot callback supplies the active
// release for lazy priming. Returns an error only for an unparseable URL;
// an unreachable server is tolerated and degrades lookups to misses.
func NewRedisCache(opts RedisOptions, snapshot func() *lexicon.Snapshot) (*RedisCache, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	redisOpts.DialTimeout = timeout
	redisOpts.ReadTimeout = timeout
	redisOpts.WriteTimeout = timeout
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{
		client:    redis.NewClient(redisOpts),
		keyPrefix: prefix,
		timeout:   timeout,
		ttl:       opts.TTL,
		snapshot:  snapshot,
	}, nil
}

func (c *RedisCache) key(version string) string {
	return fmt.Sprintf("%s:%s", c.keyPrefix, version)
}

// prime populates the per-release hash on first use. Priming is idempotent;
// concurrent primes write the same mapping.
func (c *RedisCache) prime(ctx context.Context, key string, snapshot *lexicon.Snapshot) error {
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}
	mapping := make(map[string]string)
	for _, entry := range snapshot.ActiveEntries() {
		if !eligible(entry) {
			continue
		}
		raw, err := serialize(entry)
		if err != nil {
			continue
		}
		mapping[triggerToken(entry)] = raw
	}
	if len(mapping) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, mapping)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Lookup implements Cache.
func (c *RedisCache) Lookup(ctx context.Context, version string, norm *normalize.Result) []lexicon.Entry {
	tokens := dedupeTokens(norm.TokenTexts())
	if len(tokens) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := c.key(version)
	if c.snapshot != nil {
		if snap := c.snapshot(); snap != nil {
			if err := c.prime(ctx, key, snap); err != nil {
				logging.Warnf("hot-trigger prime failed, skipping cache: %v", err)
				metrics.HotTriggerLookups.WithLabelValues("error").Inc()
				return nil
			}
		}
	}

	values, err := c.client.HMGet(ctx, key, tokens...).Result()
	if err != nil {
		logging.Warnf("hot-trigger lookup failed, falling through to full matcher: %v", err)
		metrics.HotTriggerLookups.WithLabelValues("error").Inc()
		return nil
	}
	var matches []lexicon.Entry
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		if entry, ok := deserialize(raw); ok {
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

// dedupeTokens preserves first-occurrence order.
func dedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
