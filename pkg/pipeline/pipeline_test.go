package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thelastpoet/Sentinel/pkg/claim"
	"github.com/Thelastpoet/Sentinel/pkg/embedding"
	"github.com/Thelastpoet/Sentinel/pkg/hottrigger"
	"github.com/Thelastpoet/Sentinel/pkg/langpack"
	"github.com/Thelastpoet/Sentinel/pkg/langrouter"
	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/policy"
	"github.com/Thelastpoet/Sentinel/pkg/resultcache"
	"github.com/Thelastpoet/Sentinel/pkg/vectorstore"
)

func testSnapshot() *lexicon.Snapshot {
	return &lexicon.Snapshot{
		Version: "lex-test-1",
		Entries: []lexicon.Entry{
			{
				ID: "1", Term: "kill",
				Action: moderation.ActionBlock, Label: moderation.LabelIncitementViolence,
				ReasonCode: "R_INCITE_CALL_TO_HARM", Severity: 3, Lang: "en",
			},
			{
				ID: "2", Term: "burn them",
				Action: moderation.ActionBlock, Label: moderation.LabelIncitementViolence,
				ReasonCode: "R_INCITE_CALL_TO_HARM", Severity: 3, Lang: "en",
			},
			{
				ID: "3", Term: "stolen ballots",
				Action: moderation.ActionReview, Label: moderation.LabelDisinfoRisk,
				ReasonCode: "R_DISINFO_NARRATIVE_SIMILARITY", Severity: 2, Lang: "en",
			},
		},
	}
}

func testConfig() *policy.Config {
	return &policy.Config{
		Version:         "policy-test.1",
		ModelVersion:    "sentinel-multi-v2",
		Toxicity:        policy.ToxicityByAction{Block: 0.9, Review: 0.45, Allow: 0.05},
		AllowLabel:      "BENIGN_POLITICAL_SPEECH",
		AllowReasonCode: "R_ALLOW_NO_POLICY_MATCH",
		AllowConfidence: 0.65,
		ClaimLikeness: policy.ClaimLikenessConfig{
			MediumThreshold:       0.40,
			HighThreshold:         0.70,
			RequireElectionAnchor: true,
		},
		PhaseOverrides: map[policy.ElectoralPhase]policy.PhaseOverride{
			policy.PhaseSilencePeriod: {NoMatchAction: "REVIEW"},
		},
	}
}

type stubStore struct {
	match *vectorstore.Match
	err   error
	calls int
}

func (s *stubStore) Search(context.Context, string, []float32, float64) (*vectorstore.Match, error) {
	s.calls++
	return s.match, s.err
}

type panicEmbedder struct{}

func (panicEmbedder) Name() string    { return "panicky" }
func (panicEmbedder) Version() string { return "panicky-v1" }
func (panicEmbedder) Dimension() int  { return 4 }
func (panicEmbedder) Embed(context.Context, string) ([]float32, error) {
	panic("embedder blew up")
}

func newTestPipeline(t *testing.T, cfg *policy.Config, mutate func(*Options)) *Pipeline {
	t.Helper()
	rt, err := policy.ResolveRuntime(cfg)
	require.NoError(t, err)

	holder := &lexicon.Holder{}
	holder.Activate(testSnapshot())

	opts := Options{
		Router: langrouter.New(langrouter.Config{
			Hints:       map[string][]string{"sw": {"wale", "watu", "kura"}},
			Priority:    []string{"sw", "en"},
			DefaultLang: "en",
		}, nil),
		Lexicon: holder,
		Claim:   claim.NewScorer(nil),
		Runtime: rt,
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func decide(t *testing.T, p *Pipeline, text string) *moderation.Decision {
	t.Helper()
	decision, err := p.Decide(context.Background(), &moderation.Request{Text: text})
	require.NoError(t, err)
	return decision
}

func TestDecideBlocksOnLexiconHit(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil)
	decision := decide(t, p, "They should kill them now.")

	assert.Equal(t, moderation.ActionBlock, decision.Action)
	assert.Equal(t, []moderation.Label{moderation.LabelIncitementViolence}, decision.Labels)
	assert.Contains(t, decision.ReasonCodes, "R_INCITE_CALL_TO_HARM")
	assert.InDelta(t, 0.9, decision.Toxicity, 1e-9)

	require.NotEmpty(t, decision.Evidence)
	ev := decision.Evidence[0]
	assert.Equal(t, moderation.EvidenceLexicon, ev.Type)
	assert.Equal(t, "kill", ev.Match)
	assert.Equal(t, 3, ev.Severity)
	assert.Equal(t, "en", ev.Lang)

	assert.Equal(t, "policy-test.1", decision.PolicyVersion)
	assert.Equal(t, "lex-test-1", decision.LexiconVersion)
	assert.Equal(t, "sentinel-multi-v2", decision.ModelVersion)
}

func TestDecideAllowsBenignText(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil)
	decision := decide(t, p, "I have the skill to cook.")

	assert.Equal(t, moderation.ActionAllow, decision.Action)
	assert.Equal(t, []moderation.Label{moderation.LabelBenignPolitical}, decision.Labels)
	assert.Equal(t, []string{"R_ALLOW_NO_POLICY_MATCH"}, decision.ReasonCodes)
	assert.InDelta(t, 0.05, decision.Toxicity, 1e-9)
	require.Len(t, decision.Evidence, 1)
	assert.Equal(t, moderation.EvidenceModelSpan, decision.Evidence[0].Type)
	assert.InDelta(t, 0.65, decision.Evidence[0].Confidence, 1e-9)
}

func TestDecideCoversTextWithLanguageSpans(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil)
	text := "wale watu want results"
	decision := decide(t, p, text)

	require.NotEmpty(t, decision.LanguageSpans)
	assert.Equal(t, 0, decision.LanguageSpans[0].Start)
	assert.Equal(t, len(text), decision.LanguageSpans[len(decision.LanguageSpans)-1].End)
	assert.Equal(t, "sw", decision.LanguageSpans[0].Lang)
}

func TestDecideSilencePeriodReviewsNoMatchText(t *testing.T) {
	cfg := testConfig()
	cfg.ElectoralPhase = policy.PhaseSilencePeriod
	p := newTestPipeline(t, cfg, nil)
	decision := decide(t, p, "good morning everyone")

	assert.Equal(t, moderation.ActionReview, decision.Action)
	assert.Equal(t, []moderation.Label{moderation.LabelDogwhistleWatch}, decision.Labels)
	assert.Contains(t, decision.ReasonCodes, "R_DOGWHISTLE_CONTEXT_REQUIRED")
	assert.Equal(t, "policy-test.1@silence_period", decision.PolicyVersion)
}

func TestDecideVectorMatchAloneReviews(t *testing.T) {
	store := &stubStore{match: &vectorstore.Match{
		Entry: lexicon.Entry{
			Term: "stolen ballots", Action: moderation.ActionReview,
			Label: moderation.LabelDisinfoRisk, ReasonCode: "R_DISINFO_NARRATIVE_SIMILARITY",
			Severity: 2, Lang: "en",
		},
		MatchID:    "3",
		Similarity: 0.95,
	}}
	p := newTestPipeline(t, testConfig(), func(o *Options) {
		o.Embedder = &embedding.HashBOW{}
		o.VectorStore = store
	})
	decision := decide(t, p, "they took every vote away")

	assert.Equal(t, moderation.ActionReview, decision.Action)
	assert.Contains(t, decision.Labels, moderation.LabelDisinfoRisk)
	assert.Contains(t, decision.ReasonCodes, "R_DISINFO_NARRATIVE_SIMILARITY")
	require.NotEmpty(t, decision.Evidence)
	ev := decision.Evidence[0]
	assert.Equal(t, moderation.EvidenceVectorMatch, ev.Type)
	assert.Equal(t, "3", ev.MatchID)
	assert.InDelta(t, 0.95, ev.Similarity, 1e-9)
	assert.Equal(t, 1, store.calls)
}

func TestDecideShadowStageAlwaysAllows(t *testing.T) {
	cfg := testConfig()
	cfg.DeploymentStage = policy.StageShadow
	p := newTestPipeline(t, cfg, nil)
	decision := decide(t, p, "They should kill them now.")

	assert.Equal(t, moderation.ActionAllow, decision.Action)
	assert.Contains(t, decision.Labels, moderation.LabelIncitementViolence, "shadow keeps the would-be labels")
	assert.Contains(t, decision.ReasonCodes, policy.ReasonStageShadowNoEnforce)
	require.NotEmpty(t, decision.Evidence)
	assert.InDelta(t, 0.05, decision.Toxicity, 1e-9)
}

func TestDecideAdvisoryStageNeverBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.DeploymentStage = policy.StageAdvisory
	p := newTestPipeline(t, cfg, nil)

	blocked := decide(t, p, "They should kill them now.")
	assert.Equal(t, moderation.ActionReview, blocked.Action)
	assert.Contains(t, blocked.ReasonCodes, policy.ReasonStageAdvisoryBlockDowngrade)

	allowed := decide(t, p, "I have the skill to cook.")
	assert.Equal(t, moderation.ActionAllow, allowed.Action)
	assert.NotContains(t, allowed.ReasonCodes, policy.ReasonStageAdvisoryBlockDowngrade)
}

func TestDecideIsIdempotent(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil)
	first := decide(t, p, "the stolen ballots were counted")
	second := decide(t, p, "the stolen ballots were counted")

	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.ReasonCodes, second.ReasonCodes)
	assert.Equal(t, first.Evidence, second.Evidence)
	assert.Equal(t, first.LanguageSpans, second.LanguageSpans)
	assert.InDelta(t, first.Toxicity, second.Toxicity, 1e-9)
}

func TestDecideRejectsInvalidRequests(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil)
	_, err := p.Decide(context.Background(), &moderation.Request{Text: ""})
	require.Error(t, err)
	var verr *moderation.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, moderation.ErrCodeEmptyText, verr.Code)
}

func TestDecideFailsWithoutActiveRelease(t *testing.T) {
	rt, err := policy.ResolveRuntime(testConfig())
	require.NoError(t, err)
	p, err := New(Options{
		Router:  langrouter.New(langrouter.Config{DefaultLang: "en"}, nil),
		Lexicon: &lexicon.Holder{},
		Claim:   claim.NewScorer(nil),
		Runtime: rt,
	})
	require.NoError(t, err)
	_, err = p.Decide(context.Background(), &moderation.Request{Text: "hello"})
	assert.Error(t, err)
}

func TestDecideDegradesPanickingSemanticStage(t *testing.T) {
	p := newTestPipeline(t, testConfig(), func(o *Options) {
		o.Embedder = panicEmbedder{}
		o.VectorStore = &stubStore{}
	})
	decision := decide(t, p, "They should kill them now.")
	assert.Equal(t, moderation.ActionBlock, decision.Action, "lexicon evidence survives a degraded semantic stage")
}

func TestDecideDegradesFailingVectorSearch(t *testing.T) {
	p := newTestPipeline(t, testConfig(), func(o *Options) {
		o.Embedder = &embedding.HashBOW{}
		o.VectorStore = &stubStore{err: errors.New("backend down")}
	})
	decision := decide(t, p, "good morning everyone")
	assert.Equal(t, moderation.ActionAllow, decision.Action)
}

func TestDecideHotTriggerShortCircuitsFullMatcher(t *testing.T) {
	snap := testSnapshot()
	p := newTestPipeline(t, testConfig(), func(o *Options) {
		o.HotTriggers = hottrigger.NewLocalCache(0, func() *lexicon.Snapshot { return snap })
	})
	// "kill" is a hot trigger; "stolen ballots" would only come from the
	// full matcher, which the hit skips.
	decision := decide(t, p, "kill over the stolen ballots")

	assert.Equal(t, moderation.ActionBlock, decision.Action)
	var lexEvidence []moderation.EvidenceItem
	for _, ev := range decision.Evidence {
		if ev.Type == moderation.EvidenceLexicon {
			lexEvidence = append(lexEvidence, ev)
		}
	}
	require.Len(t, lexEvidence, 1)
	assert.Equal(t, "kill", lexEvidence[0].Match)
}

func TestDecideUsesLanguagePacks(t *testing.T) {
	packs, err := langpack.Compile(&langpack.Registry{Packs: []langpack.Pack{{
		Language: "sw",
		Version:  "pack-sw-1.0",
		Entries: []lexicon.Entry{{
			ID: "p1", Term: "wachome",
			Action: moderation.ActionReview, Label: moderation.LabelIncitementViolence,
			ReasonCode: "R_INCITE_CALL_TO_HARM", Severity: 2,
		}},
	}}})
	require.NoError(t, err)
	p := newTestPipeline(t, testConfig(), func(o *Options) { o.Packs = packs })

	decision := decide(t, p, "wachome sasa hivi")
	assert.Equal(t, moderation.ActionReview, decision.Action)
	assert.Contains(t, decision.Labels, moderation.LabelIncitementViolence)
	assert.Equal(t, map[string]string{"sw": "pack-sw-1.0"}, decision.PackVersions)
}

func TestDecideServesFromResultCache(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(t, testConfig(), func(o *Options) {
		o.Embedder = &embedding.HashBOW{}
		o.VectorStore = store
		o.ResultCache = resultcache.NewLocalCache(0)
	})

	first := decide(t, p, "good morning everyone")
	second := decide(t, p, "good morning everyone")

	assert.Equal(t, 1, store.calls, "second request is a cache hit")
	assert.Equal(t, first.Action, second.Action)
	assert.Equal(t, first.ReasonCodes, second.ReasonCodes)
}

func TestDecideHonorsCancelledContext(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Decide(ctx, &moderation.Request{Text: "hello"})
	assert.ErrorIs(t, err, context.Canceled)
}
