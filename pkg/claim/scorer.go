// Package claim implements the deterministic claim-likeness heuristic: a
// weighted-feature score estimating how much a statement resembles a
// checkable (and potentially disinformation-bearing) claim. Identical input
// and identical term sets always produce the identical assessment.
package claim

import (
	"strings"

	"github.com/Thelastpoet/Sentinel/pkg/normalize"
)

// Feature weights. These are part of the documented scoring contract, not
// tunables: changing them changes every audit record downstream.
const (
	weightElectionAnchor   = 0.35
	weightAssertiveClaim   = 0.25
	weightDisinfoNarrative = 0.20
	weightNumericReference = 0.10
	weightLongForm         = 0.10
	penaltyQuestion        = 0.20
	penaltyHedging         = 0.20

	longFormTokenCount = 8
)

// Assessment is the scorer output. Banding against the policy thresholds
// happens in the merge engine, which also applies the per-request source
// multiplier; the scorer only produces the raw score.
type Assessment struct {
	Score             float64
	HasElectionAnchor bool
	Features          []string // triggered feature names, in scoring order
}

// TermSets holds the anchor vocabularies. Packs for additional languages
// extend the base English sets; lookup is against the union, so the scorer
// has no data dependency on the language router at decision time.
type TermSets struct {
	ElectionAnchors   map[string]struct{}
	AssertiveClaims   map[string]struct{}
	DisinfoNarratives map[string]struct{}
	Hedging           map[string]struct{}
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// DefaultTermSets returns the English (wave-0) vocabularies.
func DefaultTermSets() *TermSets {
	return &TermSets{
		ElectionAnchors: toSet(
			"election", "elections", "electoral", "vote", "votes", "voting",
			"ballot", "ballots", "tally", "tallies", "results", "iebc",
			"poll", "polling", "constituency", "constituencies",
		),
		AssertiveClaims: toSet(
			"is", "are", "was", "were", "has", "have", "will", "did",
			"rigged", "manipulated", "falsified", "stolen", "fraud",
			"fraudulent", "fake",
		),
		DisinfoNarratives: toSet(
			"rigged", "manipulated", "falsified", "stolen", "fake",
			"fraud", "fraudulent",
		),
		Hedging: toSet(
			"alleged", "allegedly", "rumor", "rumour", "unconfirmed",
			"possible", "possibly", "maybe", "might", "could",
			"seems", "seem",
		),
	}
}

// Merge adds another language's vocabularies into the receiver.
func (t *TermSets) Merge(other *TermSets) {
	if other == nil {
		return
	}
	for w := range other.ElectionAnchors {
		t.ElectionAnchors[w] = struct{}{}
	}
	for w := range other.AssertiveClaims {
		t.AssertiveClaims[w] = struct{}{}
	}
	for w := range other.DisinfoNarratives {
		t.DisinfoNarratives[w] = struct{}{}
	}
	for w := range other.Hedging {
		t.Hedging[w] = struct{}{}
	}
}

// Scorer scores normalized text. Immutable; safe for concurrent use.
type Scorer struct {
	terms *TermSets
}

// NewScorer builds a scorer. A nil term set means the defaults.
func NewScorer(terms *TermSets) *Scorer {
	if terms == nil {
		terms = DefaultTermSets()
	}
	return &Scorer{terms: terms}
}

func anyIn(set map[string]struct{}, tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

func hasDigitToken(tokens []string) bool {
	for _, tok := range tokens {
		allDigits := tok != ""
		for _, r := range tok {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return true
		}
	}
	return false
}

// ContainsElectionAnchor reports whether any anchor term occurs in the text.
func (s *Scorer) ContainsElectionAnchor(norm *normalize.Result) bool {
	return anyIn(s.terms.ElectionAnchors, norm.TokenTexts())
}

// Score assesses one normalized request. rawText is consulted only for the
// question-mark penalty, which tokenization would otherwise erase.
func (s *Scorer) Score(rawText string, norm *normalize.Result) Assessment {
	tokens := norm.TokenTexts()
	score := 0.0
	var feats []string

	hasAnchor := anyIn(s.terms.ElectionAnchors, tokens)
	if hasAnchor {
		score += weightElectionAnchor
		feats = append(feats, "election_anchor")
	}
	if anyIn(s.terms.AssertiveClaims, tokens) {
		score += weightAssertiveClaim
		feats = append(feats, "assertive_claim_term")
	}
	if anyIn(s.terms.DisinfoNarratives, tokens) {
		score += weightDisinfoNarrative
		feats = append(feats, "disinfo_narrative_term")
	}
	if hasDigitToken(tokens) {
		score += weightNumericReference
		feats = append(feats, "numeric_reference")
	}
	if len(tokens) >= longFormTokenCount {
		score += weightLongForm
		feats = append(feats, "long_form_statement")
	}
	if strings.Contains(rawText, "?") {
		score -= penaltyQuestion
		feats = append(feats, "question_penalty")
	}
	if anyIn(s.terms.Hedging, tokens) {
		score -= penaltyHedging
		feats = append(feats, "hedging_penalty")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Assessment{
		Score:             score,
		HasElectionAnchor: hasAnchor,
		Features:          feats,
	}
}
