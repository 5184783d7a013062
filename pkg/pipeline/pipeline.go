// Package pipeline orchestrates one moderation decision: validate, normalize,
// fan out the independent stages, and merge their buffered results under the
// runtime policy. A stage failure degrades that stage to no evidence; the
// pipeline itself fails only on invalid input, caller cancellation, or
// malformed release data surfacing in the merge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Thelastpoet/Sentinel/pkg/claim"
	"github.com/Thelastpoet/Sentinel/pkg/embedding"
	"github.com/Thelastpoet/Sentinel/pkg/hottrigger"
	"github.com/Thelastpoet/Sentinel/pkg/langpack"
	"github.com/Thelastpoet/Sentinel/pkg/langrouter"
	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
	"github.com/Thelastpoet/Sentinel/pkg/observability/metrics"
	"github.com/Thelastpoet/Sentinel/pkg/policy"
	"github.com/Thelastpoet/Sentinel/pkg/resultcache"
	"github.com/Thelastpoet/Sentinel/pkg/vectorstore"
)

// Per-stage deadlines. Stages that blow their deadline contribute no
// evidence; they never extend the decision past its own budget.
const (
	DefaultRouteTimeout  = 50 * time.Millisecond
	DefaultEmbedTimeout  = 50 * time.Millisecond
	DefaultVectorTimeout = 60 * time.Millisecond
)

// MergeError is the structured failure for the one error class that can
// abort a decision after validation. The correlation id ties the caller's
// 5xx-equivalent response to the server-side log line.
type MergeError struct {
	CorrelationID string
	Err           error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("decision aborted (correlation_id=%s): %v", e.CorrelationID, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Options wires a Pipeline. Router, Lexicon, Claim, and Runtime are
// required; everything else is optional and its stage degrades or disables
// cleanly when absent.
type Options struct {
	Router      *langrouter.Router
	Lexicon     *lexicon.Holder
	Packs       *langpack.Set
	HotTriggers hottrigger.Cache
	Embedder    embedding.Provider
	VectorStore vectorstore.Store
	Claim       *claim.Scorer
	Runtime     *policy.Runtime
	ResultCache resultcache.Cache

	RouteTimeout  time.Duration
	EmbedTimeout  time.Duration
	VectorTimeout time.Duration
}

// Pipeline is the hot-path decision engine. Immutable after New; safe for
// concurrent use.
type Pipeline struct {
	opts Options
}

// New builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Router == nil || opts.Lexicon == nil || opts.Claim == nil || opts.Runtime == nil {
		return nil, errors.New("pipeline requires router, lexicon holder, claim scorer, and policy runtime")
	}
	if opts.Packs == nil {
		opts.Packs = &langpack.Set{}
	}
	if opts.RouteTimeout <= 0 {
		opts.RouteTimeout = DefaultRouteTimeout
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.VectorTimeout <= 0 {
		opts.VectorTimeout = DefaultVectorTimeout
	}
	return &Pipeline{opts: opts}, nil
}

// Decide runs one request through the pipeline. It returns either a complete
// decision or an error; never a partial decision.
func (p *Pipeline) Decide(ctx context.Context, req *moderation.Request) (*moderation.Decision, error) {
	if err := req.Validate(); err != nil {
		metrics.ValidationErrors.Inc()
		return nil, err
	}
	start := time.Now()
	rt := p.opts.Runtime
	matcher := p.opts.Lexicon.Matcher()
	if matcher == nil {
		return nil, errors.New("no active lexicon release")
	}

	cacheKey := ""
	if p.opts.ResultCache != nil {
		cacheKey = resultcache.Key(resultcache.KeyInputs{
			Text:            req.Text,
			PolicyVersion:   rt.PolicyVersion,
			LexiconVersion:  matcher.Version(),
			ModelVersion:    rt.Config.ModelVersion,
			PackVersions:    p.opts.Packs.Versions(),
			DeploymentStage: string(rt.Stage),
			Context:         req.Context,
		})
		if cached := p.opts.ResultCache.Get(ctx, cacheKey); cached != nil {
			return cached, nil
		}
	}

	norm := normalize.Normalize(req.Text)

	var results policy.StageResults
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results.Spans = p.routeStage(gctx, req.Text, norm)
		return nil
	})
	g.Go(func() error {
		results.LexiconMatches = p.lexiconStage(gctx, matcher, norm)
		return nil
	})
	g.Go(func() error {
		results.VectorMatch = p.semanticStage(gctx, matcher.Version(), norm, rt, req.Context)
		return nil
	})
	g.Go(func() error {
		results.Claim = p.claimStage(req.Text, norm)
		return nil
	})
	// Stage funcs recover their own failures; Wait only observes ctx errors.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decision, err := policy.Merge(req.Text, results, rt, req.Context, policy.Provenance{
		LexiconVersion: matcher.Version(),
		PackVersions:   p.opts.Packs.Versions(),
	})
	if err != nil {
		correlationID := uuid.NewString()
		logging.Errorf("merge failed (correlation_id=%s request_id=%s): %v", correlationID, req.RequestID, err)
		return nil, &MergeError{CorrelationID: correlationID, Err: err}
	}

	elapsed := time.Since(start)
	decision.LatencyMS = elapsed.Milliseconds()
	metrics.RecordDecision(string(decision.Action), elapsed.Seconds())

	if p.opts.ResultCache != nil {
		p.opts.ResultCache.Set(ctx, cacheKey, decision)
	}
	return decision, nil
}

// routeStage tags language spans. The router itself never fails; the recover
// guards the stage against future provider integrations.
func (p *Pipeline) routeStage(ctx context.Context, text string, norm *normalize.Result) (spans []moderation.LanguageSpan) {
	defer degradeOnPanic("language_router", func() { spans = nil })
	ctx, cancel := context.WithTimeout(ctx, p.opts.RouteTimeout)
	defer cancel()
	return p.opts.Router.Route(ctx, text, norm)
}

// lexiconStage consults the hot-trigger cache first, short-circuiting the
// full matcher when a known high-severity trigger is present, and otherwise
// runs the full matcher and the language packs. Output is ordered by first
// occurrence, with pack matches after core matches.
func (p *Pipeline) lexiconStage(ctx context.Context, matcher *lexicon.Matcher, norm *normalize.Result) (matches []lexicon.Match) {
	defer degradeOnPanic("lexicon_matcher", func() { matches = nil })

	if p.opts.HotTriggers != nil {
		hot := p.opts.HotTriggers.Lookup(ctx, matcher.Version(), norm)
		if blocks := hotMatches(norm, hot); len(blocks) > 0 {
			return blocks
		}
	}

	matches = matcher.Match(norm)
	matches = append(matches, p.opts.Packs.Match(norm)...)
	return matches
}

// hotMatches positions cached trigger entries in the text. Entries whose
// token is not actually present are dropped; the cache answered for a
// different normalization in that case and the full matcher decides.
func hotMatches(norm *normalize.Result, entries []lexicon.Entry) []lexicon.Match {
	if len(entries) == 0 {
		return nil
	}
	index := make(map[string]int)
	for i, tok := range norm.Tokens {
		if _, seen := index[tok.Text]; !seen {
			index[tok.Text] = i
		}
	}
	var matches []lexicon.Match
	for _, entry := range entries {
		toks := normalize.Normalize(entry.Term).TokenTexts()
		if len(toks) != 1 {
			continue
		}
		i, ok := index[toks[0]]
		if !ok {
			continue
		}
		matches = append(matches, lexicon.Match{
			Entry:      entry,
			TokenIndex: i,
			Start:      norm.Tokens[i].Start,
			End:        norm.Tokens[i].End,
		})
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].TokenIndex < matches[b].TokenIndex })
	return matches
}

// semanticStage embeds the canonical text and searches the vector store.
// Disabled (nil store or embedder) and degraded both yield no evidence.
func (p *Pipeline) semanticStage(ctx context.Context, version string, norm *normalize.Result, rt *policy.Runtime, reqCtx *moderation.Context) (match *vectorstore.Match) {
	defer degradeOnPanic("semantic_matcher", func() { match = nil })
	if p.opts.VectorStore == nil || p.opts.Embedder == nil {
		metrics.VectorSearches.WithLabelValues("disabled").Inc()
		return nil
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, p.opts.EmbedTimeout)
	defer cancelEmbed()
	vector, err := p.opts.Embedder.Embed(embedCtx, norm.Canonical)
	if err != nil {
		logging.Warnf("embedding failed, skipping vector evidence: %v", err)
		metrics.RecordStageDegraded("semantic_matcher", "embed_error")
		return nil
	}

	threshold := rt.EffectiveVectorThreshold(reqCtx)
	searchCtx, cancelSearch := context.WithTimeout(ctx, p.opts.VectorTimeout)
	defer cancelSearch()
	match, err = p.opts.VectorStore.Search(searchCtx, version, vector, threshold)
	if err != nil {
		logging.Warnf("vector search failed, skipping vector evidence: %v", err)
		metrics.RecordStageDegraded("semantic_matcher", "search_error")
		metrics.VectorSearches.WithLabelValues("error").Inc()
		return nil
	}
	if match == nil {
		metrics.VectorSearches.WithLabelValues("no_match").Inc()
		return nil
	}
	metrics.VectorSearches.WithLabelValues("match").Inc()
	return match
}

// claimStage scores claim likeness. Pure computation; the recover keeps a
// scorer bug from aborting decisions.
func (p *Pipeline) claimStage(text string, norm *normalize.Result) (assessment *claim.Assessment) {
	defer degradeOnPanic("claim_scorer", func() { assessment = nil })
	a := p.opts.Claim.Score(text, norm)
	return &a
}

func degradeOnPanic(stage string, reset func()) {
	if rec := recover(); rec != nil {
		logging.Errorf("stage %s panicked, degrading to no evidence: %v", stage, rec)
		metrics.RecordStageDegraded(stage, "panic")
		reset()
	}
}
