// Package moderation defines the request/decision data model shared by the
// pipeline stages. All per-request values are built once and never mutated.
package moderation

// Action is the enforcement outcome of a decision.
type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionReview Action = "REVIEW"
	ActionBlock  Action = "BLOCK"
)

// Label is a policy label attached to a decision.
type Label string

const (
	LabelEthnicContempt     Label = "ETHNIC_CONTEMPT"
	LabelIncitementViolence Label = "INCITEMENT_VIOLENCE"
	LabelHarassmentThreat   Label = "HARASSMENT_THREAT"
	LabelDogwhistleWatch    Label = "DOGWHISTLE_WATCH"
	LabelDisinfoRisk        Label = "DISINFO_RISK"
	LabelBenignPolitical    Label = "BENIGN_POLITICAL_SPEECH"
)

// KnownLabels is the closed set of labels a decision may carry.
var KnownLabels = map[Label]struct{}{
	LabelEthnicContempt:     {},
	LabelIncitementViolence: {},
	LabelHarassmentThreat:   {},
	LabelDogwhistleWatch:    {},
	LabelDisinfoRisk:        {},
	LabelBenignPolitical:    {},
}

// EvidenceType discriminates the EvidenceItem union.
type EvidenceType string

const (
	EvidenceLexicon     EvidenceType = "lexicon"
	EvidenceVectorMatch EvidenceType = "vector_match"
	EvidenceModelSpan   EvidenceType = "model_span"
)

// Context carries optional caller-supplied request context.
type Context struct {
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
	Locale  string `json:"locale,omitempty" yaml:"locale,omitempty"`
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// Request is one inbound moderation request. Immutable after validation.
type Request struct {
	Text      string   `json:"text"`
	Context   *Context `json:"context,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// EvidenceItem is one contributing signal. Only the fields relevant to its
// Type are populated:
//
//	lexicon:      Match, Severity, Lang
//	vector_match: Match, Severity, Lang, MatchID, Similarity
//	model_span:   Span, Confidence
type EvidenceItem struct {
	Type       EvidenceType `json:"type"`
	Match      string       `json:"match,omitempty"`
	Severity   int          `json:"severity,omitempty"`
	Lang       string       `json:"lang,omitempty"`
	MatchID    string       `json:"match_id,omitempty"`
	Similarity float64      `json:"similarity,omitempty"`
	Span       string       `json:"span,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
}

// LanguageSpan tags a half-open [Start, End) byte range of the original text
// with a resolved language code. Spans are contiguous and cover the text.
type LanguageSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Lang  string `json:"lang"`
}

// Decision is the audit record returned to the caller. Every field is
// populated on the success path and the value is never mutated afterwards.
type Decision struct {
	Toxicity       float64           `json:"toxicity"`
	Labels         []Label           `json:"labels"`
	Action         Action            `json:"action"`
	ReasonCodes    []string          `json:"reason_codes"`
	Evidence       []EvidenceItem    `json:"evidence"`
	LanguageSpans  []LanguageSpan    `json:"language_spans"`
	ModelVersion   string            `json:"model_version"`
	LexiconVersion string            `json:"lexicon_version"`
	PackVersions   map[string]string `json:"pack_versions"`
	PolicyVersion  string            `json:"policy_version"`
	LatencyMS      int64             `json:"latency_ms"`
}
