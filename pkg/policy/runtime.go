package policy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

// Environment overrides resolved once per process (or reload window).
const (
	EnvElectoralPhase       = "SENTINEL_ELECTORAL_PHASE"
	EnvDeploymentStage      = "SENTINEL_DEPLOYMENT_STAGE"
	EnvVectorMatchThreshold = "SENTINEL_VECTOR_MATCH_THRESHOLD"
)

// Runtime is the effective policy for one process lifetime: the loaded config
// with phase and stage resolved and the phase profile folded in. Immutable;
// passed into the merge stage as a value, never read from global state.
type Runtime struct {
	Config          *Config
	Phase           ElectoralPhase // empty when no phase applies
	Stage           DeploymentStage
	PolicyVersion   string // "<version>@<phase>#<stage>" as applicable
	Toxicity        ToxicityByAction
	AllowConfidence float64
	NoMatchAction   moderation.Action

	// vectorThreshold is the phase profile value; nil defers to the
	// environment override and then the baseline default.
	vectorThreshold *float64
}

// ResolveRuntime folds the environment and the active phase profile into an
// effective runtime. Invalid environment values are fatal, matching the
// config loader: a mistyped phase must stop the rollout, not silently run
// with baseline policy.
func ResolveRuntime(cfg *Config) (*Runtime, error) {
	phase, err := resolvePhase(cfg)
	if err != nil {
		return nil, err
	}
	stage, err := resolveStage(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:          cfg,
		Phase:           phase,
		Stage:           stage,
		Toxicity:        cfg.Toxicity,
		AllowConfidence: cfg.AllowConfidence,
		NoMatchAction:   moderation.ActionAllow,
	}
	if phase != "" {
		if override, ok := cfg.PhaseOverrides[phase]; ok {
			if override.ToxicityByAction != nil {
				rt.Toxicity = *override.ToxicityByAction
			}
			if override.AllowConfidence != nil {
				rt.AllowConfidence = *override.AllowConfidence
			}
			rt.vectorThreshold = override.VectorMatchThreshold
			if override.NoMatchAction != "" {
				rt.NoMatchAction = moderation.Action(override.NoMatchAction)
			}
		}
	}

	rt.PolicyVersion = cfg.Version
	if phase != "" {
		rt.PolicyVersion = fmt.Sprintf("%s@%s", cfg.Version, phase)
	}
	if stage != StageSupervised {
		rt.PolicyVersion = fmt.Sprintf("%s#%s", rt.PolicyVersion, stage)
	}

	logging.Infof("Resolved policy runtime: version=%s phase=%q stage=%s no_match=%s",
		rt.PolicyVersion, phase, stage, rt.NoMatchAction)
	return rt, nil
}

func resolvePhase(cfg *Config) (ElectoralPhase, error) {
	raw := strings.TrimSpace(os.Getenv(EnvElectoralPhase))
	if raw == "" {
		return cfg.ElectoralPhase, nil
	}
	phase := ElectoralPhase(raw)
	if _, ok := KnownPhases[phase]; !ok {
		return "", fmt.Errorf("invalid %s value: %q", EnvElectoralPhase, raw)
	}
	return phase, nil
}

func resolveStage(cfg *Config) (DeploymentStage, error) {
	raw := strings.TrimSpace(os.Getenv(EnvDeploymentStage))
	if raw != "" {
		stage := DeploymentStage(strings.ToLower(raw))
		if _, ok := KnownStages[stage]; !ok {
			return "", fmt.Errorf("invalid %s value: %q", EnvDeploymentStage, raw)
		}
		return stage, nil
	}
	if cfg.DeploymentStage != "" {
		return cfg.DeploymentStage, nil
	}
	return StageSupervised, nil
}

// VectorMatchThreshold resolves the effective similarity threshold before any
// per-request context adjustment: phase profile, then environment override,
// then the baseline default. Out-of-range environment values are logged and
// ignored, never fatal.
func (rt *Runtime) VectorMatchThreshold() float64 {
	if rt.vectorThreshold != nil {
		return *rt.vectorThreshold
	}
	raw := strings.TrimSpace(os.Getenv(EnvVectorMatchThreshold))
	if raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err == nil && value >= 0 && value <= 1 {
			return value
		}
		logging.Warnf("Ignoring invalid %s value %q", EnvVectorMatchThreshold, raw)
	}
	return DefaultVectorMatchThreshold
}

// EffectiveVectorThreshold applies the per-request channel adjustment on top
// of the resolved threshold: forward −0.04, broadcast +0.02, clamped to [0,1].
func (rt *Runtime) EffectiveVectorThreshold(reqCtx *moderation.Context) float64 {
	threshold := rt.VectorMatchThreshold()
	threshold += channelThresholdDelta(reqCtx)
	if threshold < 0 {
		return 0
	}
	if threshold > 1 {
		return 1
	}
	return threshold
}

func channelThresholdDelta(reqCtx *moderation.Context) float64 {
	if reqCtx == nil {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(reqCtx.Channel)) {
	case "forward":
		return -0.04
	case "broadcast":
		return 0.02
	default:
		return 0
	}
}

// ClaimScoreMultiplier returns the per-request claim-score multiplier:
// partner_factcheck sources score ×1.10 before banding.
func ClaimScoreMultiplier(reqCtx *moderation.Context) float64 {
	if reqCtx == nil {
		return 1.0
	}
	if strings.ToLower(strings.TrimSpace(reqCtx.Source)) == "partner_factcheck" {
		return 1.10
	}
	return 1.0
}
