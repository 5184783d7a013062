package policy

import (
	"fmt"
	"sort"

	"github.com/Thelastpoet/Sentinel/pkg/claim"
	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/vectorstore"
)

// evidenceSpanLimit caps the text excerpt carried in model_span evidence.
const evidenceSpanLimit = 80

// StageResults carries the buffered output of the concurrent pipeline stages.
// A nil field means that stage produced no signal, whether by outcome or by
// degradation; the merge cannot tell the difference and must not care.
type StageResults struct {
	Spans          []moderation.LanguageSpan
	LexiconMatches []lexicon.Match
	VectorMatch    *vectorstore.Match
	Claim          *claim.Assessment
}

// Provenance carries the version fields the merge stamps into the decision.
type Provenance struct {
	LexiconVersion string
	PackVersions   map[string]string
}

// Merge fuses the stage results into a final decision under the runtime
// policy. Deterministic: identical inputs always produce the identical
// decision. The returned error class is reserved for malformed release data
// (an entry carrying an unknown label); it is the only way a decision can
// abort after validation.
func Merge(text string, results StageResults, rt *Runtime, reqCtx *moderation.Context, prov Provenance) (*moderation.Decision, error) {
	evidence := make([]moderation.EvidenceItem, 0, len(results.LexiconMatches)+2)
	labels := make([]moderation.Label, 0, 2)
	reasons := make([]string, 0, 4)

	hasBlock := false
	for _, m := range results.LexiconMatches {
		label, err := asLabel(m.Entry.Label)
		if err != nil {
			return nil, err
		}
		if m.Entry.Action == moderation.ActionBlock {
			hasBlock = true
		}
		labels = append(labels, label)
		reasons = append(reasons, m.Entry.ReasonCode)
		evidence = append(evidence, lexicon.EvidenceFor(m))
	}

	if vm := results.VectorMatch; vm != nil {
		label, err := asLabel(vm.Entry.Label)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
		reasons = append(reasons, vm.Entry.ReasonCode)
		evidence = append(evidence, moderation.EvidenceItem{
			Type:       moderation.EvidenceVectorMatch,
			Match:      vm.Entry.Term,
			Severity:   vm.Entry.Severity,
			Lang:       vm.Entry.Lang,
			MatchID:    vm.MatchID,
			Similarity: vm.Similarity,
		})
	}

	if ev, label, reason, ok := claimEvidence(text, results.Claim, rt, reqCtx); ok {
		labels = append(labels, label)
		reasons = append(reasons, reason)
		evidence = append(evidence, ev)
	}

	var action moderation.Action
	switch {
	case hasBlock:
		action = moderation.ActionBlock
	case len(evidence) > 0:
		action = moderation.ActionReview
	case rt.NoMatchAction == moderation.ActionReview:
		action = moderation.ActionReview
		labels = append(labels, moderation.LabelDogwhistleWatch)
		reasons = append(reasons, ReasonDogwhistleContextRequired)
		evidence = append(evidence, moderation.EvidenceItem{
			Type:       moderation.EvidenceModelSpan,
			Span:       truncateSpan(text),
			Confidence: rt.AllowConfidence,
		})
	default:
		action = moderation.ActionAllow
		labels = append(labels, moderation.Label(rt.Config.AllowLabel))
		reasons = append(reasons, rt.Config.AllowReasonCode)
		evidence = append(evidence, moderation.EvidenceItem{
			Type:       moderation.EvidenceModelSpan,
			Span:       truncateSpan(text),
			Confidence: rt.AllowConfidence,
		})
	}

	action, reasons = applyStage(rt.Stage, action, reasons)

	spans := results.Spans
	if spans == nil {
		spans = []moderation.LanguageSpan{}
	}
	return &moderation.Decision{
		Toxicity:       rt.Toxicity.For(action),
		Labels:         dedupeLabels(labels),
		Action:         action,
		ReasonCodes:    dedupeReasons(reasons),
		Evidence:       evidence,
		LanguageSpans:  spans,
		ModelVersion:   rt.Config.ModelVersion,
		LexiconVersion: prov.LexiconVersion,
		PackVersions:   packVersions(prov, rt),
		PolicyVersion:  rt.PolicyVersion,
	}, nil
}

// claimEvidence bands the claim score under the runtime thresholds, after the
// per-request source multiplier, and builds REVIEW-level evidence when the
// band and anchor gate are met.
func claimEvidence(text string, a *claim.Assessment, rt *Runtime, reqCtx *moderation.Context) (moderation.EvidenceItem, moderation.Label, string, bool) {
	if a == nil {
		return moderation.EvidenceItem{}, "", "", false
	}
	score := a.Score * ClaimScoreMultiplier(reqCtx)
	if score > 1 {
		score = 1
	}
	cl := rt.Config.ClaimLikeness
	if cl.RequireElectionAnchor && !a.HasElectionAnchor {
		return moderation.EvidenceItem{}, "", "", false
	}
	var reason string
	switch {
	case score >= cl.HighThreshold:
		reason = ReasonDisinfoClaimLikenessHigh
	case score >= cl.MediumThreshold:
		reason = ReasonDisinfoClaimLikenessMedium
	default:
		return moderation.EvidenceItem{}, "", "", false
	}
	ev := moderation.EvidenceItem{
		Type:       moderation.EvidenceModelSpan,
		Span:       truncateSpan(text),
		Confidence: score,
	}
	return ev, moderation.LabelDisinfoRisk, reason, true
}

// applyStage is the final override. SHADOW neutralizes enforcement while
// keeping the full audit trail; ADVISORY only defuses BLOCK.
func applyStage(stage DeploymentStage, action moderation.Action, reasons []string) (moderation.Action, []string) {
	switch stage {
	case StageShadow:
		if action == moderation.ActionAllow {
			return action, reasons
		}
		return moderation.ActionAllow, append(reasons, ReasonStageShadowNoEnforce)
	case StageAdvisory:
		if action != moderation.ActionBlock {
			return action, reasons
		}
		return moderation.ActionReview, append(reasons, ReasonStageAdvisoryBlockDowngrade)
	default:
		return action, reasons
	}
}

func asLabel(label moderation.Label) (moderation.Label, error) {
	if _, ok := moderation.KnownLabels[label]; !ok {
		return "", fmt.Errorf("unknown moderation label: %q", label)
	}
	return label, nil
}

func truncateSpan(text string) string {
	runes := []rune(text)
	if len(runes) <= evidenceSpanLimit {
		return text
	}
	return string(runes[:evidenceSpanLimit])
}

// dedupeLabels produces the sorted label set.
func dedupeLabels(labels []moderation.Label) []moderation.Label {
	seen := make(map[moderation.Label]struct{}, len(labels))
	out := make([]moderation.Label, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dedupeReasons keeps first-occurrence order: lexicon codes in match order,
// then vector, then claim, then stage markers, as appended above.
func dedupeReasons(reasons []string) []string {
	seen := make(map[string]struct{}, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func packVersions(prov Provenance, rt *Runtime) map[string]string {
	out := make(map[string]string, len(rt.Config.PackVersions)+len(prov.PackVersions))
	for k, v := range rt.Config.PackVersions {
		out[k] = v
	}
	for k, v := range prov.PackVersions {
		out[k] = v
	}
	return out
}
