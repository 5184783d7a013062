// Package policy owns the moderation policy configuration and the merge
// engine that fuses stage signals into a final decision. Config is loaded
// once, validated fail-fast, and treated as immutable afterwards.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

// ElectoralPhase selects a phase-specific policy profile.
type ElectoralPhase string

const (
	PhasePreCampaign   ElectoralPhase = "pre_campaign"
	PhaseCampaign      ElectoralPhase = "campaign"
	PhaseSilencePeriod ElectoralPhase = "silence_period"
	PhaseVotingDay     ElectoralPhase = "voting_day"
	PhaseResultsPeriod ElectoralPhase = "results_period"
)

// KnownPhases is the closed set of electoral phases.
var KnownPhases = map[ElectoralPhase]struct{}{
	PhasePreCampaign:   {},
	PhaseCampaign:      {},
	PhaseSilencePeriod: {},
	PhaseVotingDay:     {},
	PhaseResultsPeriod: {},
}

// DeploymentStage gates how aggressively decisions are enforced.
type DeploymentStage string

const (
	StageShadow     DeploymentStage = "shadow"
	StageAdvisory   DeploymentStage = "advisory"
	StageSupervised DeploymentStage = "supervised"
)

// KnownStages is the closed set of deployment stages.
var KnownStages = map[DeploymentStage]struct{}{
	StageShadow:     {},
	StageAdvisory:   {},
	StageSupervised: {},
}

// Stage marker reason codes appended by the deployment-stage override.
const (
	ReasonStageShadowNoEnforce        = "R_STAGE_SHADOW_NO_ENFORCE"
	ReasonStageAdvisoryBlockDowngrade = "R_STAGE_ADVISORY_BLOCK_DOWNGRADED"
)

// Reason codes owned by the merge engine itself (all others come from
// lexicon entries).
const (
	ReasonAllowNoPolicyMatch         = "R_ALLOW_NO_POLICY_MATCH"
	ReasonDogwhistleContextRequired  = "R_DOGWHISTLE_CONTEXT_REQUIRED"
	ReasonDisinfoClaimLikenessMedium = "R_DISINFO_CLAIM_LIKENESS_MEDIUM"
	ReasonDisinfoClaimLikenessHigh   = "R_DISINFO_CLAIM_LIKENESS_HIGH"
)

// DefaultVectorMatchThreshold applies when neither the phase override nor the
// environment sets one.
const DefaultVectorMatchThreshold = 0.82

// EnvPolicyConfigPath, when set, points the loader at an explicit file.
const EnvPolicyConfigPath = "SENTINEL_POLICY_CONFIG_PATH"

// ToxicityByAction maps each final action to its fixed reported toxicity.
type ToxicityByAction struct {
	Block  float64 `yaml:"BLOCK" json:"BLOCK"`
	Review float64 `yaml:"REVIEW" json:"REVIEW"`
	Allow  float64 `yaml:"ALLOW" json:"ALLOW"`
}

// For returns the toxicity value for an action.
func (t ToxicityByAction) For(action moderation.Action) float64 {
	switch action {
	case moderation.ActionBlock:
		return t.Block
	case moderation.ActionReview:
		return t.Review
	default:
		return t.Allow
	}
}

// LanguageHints holds per-language hint token lists for the router.
type LanguageHints struct {
	Swahili []string `yaml:"sw" json:"sw"`
	Sheng   []string `yaml:"sh" json:"sh"`
}

// DefaultLanguagePriority is the hint tie-break order when the config does
// not set one. Sheng resolves before Swahili, matching the hint lookup order
// the router has always used.
var DefaultLanguagePriority = []string{"sh", "sw", "en"}

// ClaimLikenessConfig holds the claim-score band thresholds.
type ClaimLikenessConfig struct {
	MediumThreshold       float64 `yaml:"medium_threshold" json:"medium_threshold"`
	HighThreshold         float64 `yaml:"high_threshold" json:"high_threshold"`
	RequireElectionAnchor bool    `yaml:"require_election_anchor" json:"require_election_anchor"`
}

// PhaseOverride is one electoral phase's policy profile. Nil pointer fields
// mean "inherit the baseline".
type PhaseOverride struct {
	ToxicityByAction     *ToxicityByAction `yaml:"toxicity_by_action,omitempty" json:"toxicity_by_action,omitempty"`
	AllowConfidence      *float64          `yaml:"allow_confidence,omitempty" json:"allow_confidence,omitempty"`
	VectorMatchThreshold *float64          `yaml:"vector_match_threshold,omitempty" json:"vector_match_threshold,omitempty"`
	NoMatchAction        string            `yaml:"no_match_action,omitempty" json:"no_match_action,omitempty"`
}

// Config is the full policy configuration. Immutable after Load.
type Config struct {
	Version          string                           `yaml:"version" json:"version"`
	ModelVersion     string                           `yaml:"model_version" json:"model_version"`
	PackVersions     map[string]string                `yaml:"pack_versions" json:"pack_versions"`
	Toxicity         ToxicityByAction                 `yaml:"toxicity_by_action" json:"toxicity_by_action"`
	AllowLabel       string                           `yaml:"allow_label" json:"allow_label"`
	AllowReasonCode  string                           `yaml:"allow_reason_code" json:"allow_reason_code"`
	AllowConfidence  float64                          `yaml:"allow_confidence" json:"allow_confidence"`
	LanguageHints    LanguageHints                    `yaml:"language_hints" json:"language_hints"`
	LanguagePriority []string                         `yaml:"language_priority,omitempty" json:"language_priority,omitempty"`
	ClaimLikeness    ClaimLikenessConfig              `yaml:"claim_likeness" json:"claim_likeness"`
	ElectoralPhase   ElectoralPhase                   `yaml:"electoral_phase,omitempty" json:"electoral_phase,omitempty"`
	DeploymentStage  DeploymentStage                  `yaml:"deployment_stage,omitempty" json:"deployment_stage,omitempty"`
	PhaseOverrides   map[ElectoralPhase]PhaseOverride `yaml:"phase_overrides,omitempty" json:"phase_overrides,omitempty"`
}

// HintPriority returns the configured language tie-break order for the
// router, or DefaultLanguagePriority when the config does not set one.
func (c *Config) HintPriority() []string {
	if len(c.LanguagePriority) > 0 {
		return c.LanguagePriority
	}
	return DefaultLanguagePriority
}

// Load reads and validates a policy config file. YAML (a superset of the
// JSON config shape) is the on-disk format. Any validation failure is fatal
// to startup, never deferred to decision time.
func Load(path string) (*Config, error) {
	if env := strings.TrimSpace(os.Getenv(EnvPolicyConfigPath)); env != "" {
		path = env
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read policy config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a policy config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Infof("Loaded policy config version=%s model=%s overrides=%d",
		cfg.Version, cfg.ModelVersion, len(cfg.PhaseOverrides))
	return &cfg, nil
}
