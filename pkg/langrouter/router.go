// Package langrouter splits text into contiguous language-tagged spans.
//
// Resolution order per token: hint dictionaries (deterministic), then the
// optional LID provider when its confidence clears the configured threshold,
// then the default language. When two hint dictionaries both contain a token
// the language earlier in the configured priority list wins; the priority
// list is part of the policy config so the tie-break is documented and
// reproducible.
package langrouter

import (
	"context"
	"strings"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
	"github.com/Thelastpoet/Sentinel/pkg/observability/metrics"
)

// DefaultConfidenceThreshold gates provider predictions.
const DefaultConfidenceThreshold = 0.80

// Config holds the routing tables. Built once from policy config.
type Config struct {
	// Hints maps language code -> set of hint tokens.
	Hints map[string][]string
	// Priority orders languages for the hint tie-break; languages absent
	// from the list lose to any listed language.
	Priority []string
	// DefaultLang is used when nothing else resolves. Required.
	DefaultLang string
	// ConfidenceThreshold gates provider predictions; zero means the
	// package default.
	ConfidenceThreshold float64
}

// Router assigns language spans. Immutable after construction; safe for
// concurrent use.
type Router struct {
	hints       map[string]map[string]struct{}
	priority    map[string]int
	supported   map[string]struct{}
	defaultLang string
	threshold   float64
	provider    Provider
}

// New builds a Router. The provider is optional; pass nil to route purely
// from hint dictionaries and the default language.
func New(cfg Config, provider Provider) *Router {
	hints := make(map[string]map[string]struct{}, len(cfg.Hints))
	supported := make(map[string]struct{}, len(cfg.Hints)+1)
	for lang, words := range cfg.Hints {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				set[w] = struct{}{}
			}
		}
		hints[lang] = set
		supported[lang] = struct{}{}
	}
	defaultLang := strings.ToLower(strings.TrimSpace(cfg.DefaultLang))
	if defaultLang == "" {
		defaultLang = "en"
	}
	supported[defaultLang] = struct{}{}

	priority := make(map[string]int, len(cfg.Priority))
	for i, lang := range cfg.Priority {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if _, dup := priority[lang]; lang != "" && !dup {
			priority[lang] = i
		}
	}

	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}

	return &Router{
		hints:       hints,
		priority:    priority,
		supported:   supported,
		defaultLang: defaultLang,
		threshold:   threshold,
		provider:    provider,
	}
}

// Route tags the original text with contiguous, non-overlapping language
// spans covering [0, len(text)). It never fails: provider errors degrade to
// the hint/default path.
func (r *Router) Route(ctx context.Context, text string, norm *normalize.Result) []moderation.LanguageSpan {
	if len(text) == 0 {
		return []moderation.LanguageSpan{{Start: 0, End: 0, Lang: r.defaultLang}}
	}
	tokens := norm.Tokens
	if len(tokens) == 0 {
		return []moderation.LanguageSpan{{Start: 0, End: len(text), Lang: r.defaultLang}}
	}

	langs := make([]string, len(tokens))
	for i, tok := range tokens {
		langs[i] = r.classifyToken(ctx, tok.Text)
	}

	// Merge adjacent tokens with the same resolved language; gaps between
	// tokens extend the preceding span so the full text stays covered.
	var spans []moderation.LanguageSpan
	spanStart := 0
	current := langs[0]
	for i := 1; i < len(tokens); i++ {
		if langs[i] == current {
			continue
		}
		spans = append(spans, moderation.LanguageSpan{Start: spanStart, End: tokens[i].Start, Lang: current})
		spanStart = tokens[i].Start
		current = langs[i]
	}
	spans = append(spans, moderation.LanguageSpan{Start: spanStart, End: len(text), Lang: current})
	return spans
}

// classifyToken resolves one token's language.
func (r *Router) classifyToken(ctx context.Context, token string) string {
	if lang, ok := r.hintLanguage(token); ok {
		return lang
	}
	if r.provider != nil {
		lang, confidence, ok := r.predict(ctx, token)
		if ok && confidence >= r.threshold {
			if _, supported := r.supported[lang]; supported {
				return lang
			}
		}
	}
	return r.defaultLang
}

// hintLanguage checks every hint dictionary and applies the priority-list
// tie-break when more than one matches.
func (r *Router) hintLanguage(token string) (string, bool) {
	best := ""
	bestRank := int(^uint(0) >> 1)
	for lang, set := range r.hints {
		if _, ok := set[token]; !ok {
			continue
		}
		rank, listed := r.priority[lang]
		if !listed {
			rank = len(r.priority) + 1
		}
		if best == "" || rank < bestRank || (rank == bestRank && lang < best) {
			best = lang
			bestRank = rank
		}
	}
	return best, best != ""
}

// predict wraps the provider so a panic or error can never escape into the
// routing path; a failed provider is observable as a degraded stage.
func (r *Router) predict(ctx context.Context, token string) (lang string, confidence float64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Warnf("language provider %s panicked; degrading to hints: %v", r.provider.Name(), rec)
			metrics.RecordStageDegraded("language_router", "provider_panic")
			lang, confidence, ok = "", 0, false
		}
	}()
	return r.provider.Predict(ctx, token)
}
