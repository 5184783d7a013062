// Package resultcache caches full decisions keyed by everything that can
// influence them. Because the key covers the text and every version and
// override input, a hit is by construction the decision the pipeline would
// have recomputed; the cache is purely a latency optimization and every
// failure degrades to a miss.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
	"github.com/Thelastpoet/Sentinel/pkg/observability/metrics"
)

// KeyPrefix namespaces result entries in a shared Redis.
const KeyPrefix = "sentinel:result:"

// DefaultTTL bounds staleness after an out-of-band release or config change
// that somehow left the version strings unchanged.
const DefaultTTL = 5 * time.Minute

// KeyInputs are the decision-shaping inputs hashed into the cache key.
type KeyInputs struct {
	Text            string
	PolicyVersion   string
	LexiconVersion  string
	ModelVersion    string
	PackVersions    map[string]string
	DeploymentStage string
	Context         *moderation.Context
}

// Key builds the deterministic cache key for one request.
func Key(in KeyInputs) string {
	var b strings.Builder
	b.WriteString(in.Text)
	b.WriteByte(0)
	b.WriteString(in.PolicyVersion)
	b.WriteByte(0)
	b.WriteString(in.LexiconVersion)
	b.WriteByte(0)
	b.WriteString(in.ModelVersion)
	b.WriteByte(0)
	langs := make([]string, 0, len(in.PackVersions))
	for lang := range in.PackVersions {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		b.WriteString(lang)
		b.WriteByte('=')
		b.WriteString(in.PackVersions[lang])
		b.WriteByte(0)
	}
	b.WriteString(in.DeploymentStage)
	b.WriteByte(0)
	if in.Context != nil {
		b.WriteString(in.Context.Source)
		b.WriteByte(0)
		b.WriteString(in.Context.Locale)
		b.WriteByte(0)
		b.WriteString(in.Context.Channel)
	}
	digest := sha256.Sum256([]byte(b.String()))
	return KeyPrefix + hex.EncodeToString(digest[:])
}

// Cache stores and retrieves decisions. Implementations never surface
// errors: reads degrade to a miss, writes are best-effort.
type Cache interface {
	Get(ctx context.Context, key string) *moderation.Decision
	Set(ctx context.Context, key string, decision *moderation.Decision)
}

func encode(decision *moderation.Decision) ([]byte, error) {
	data, err := json.Marshal(decision)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached decision: %w", err)
	}
	return data, nil
}

func decode(data []byte) *moderation.Decision {
	var decision moderation.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		logging.Debugf("result cache entry undecodable, treating as miss: %v", err)
		return nil
	}
	return &decision
}

func recordLookup(hit bool) {
	if hit {
		metrics.ResultCacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.ResultCacheLookups.WithLabelValues("miss").Inc()
	}
}
