package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/observability/metrics"
)

var reasonCodePattern = regexp.MustCompile(`^R_[A-Z0-9_]+$`)

func checkUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("policy config: %s must be within [0,1], got %v", name, v)
	}
	return nil
}

func (t ToxicityByAction) validate(prefix string) error {
	if err := checkUnit(prefix+".BLOCK", t.Block); err != nil {
		return err
	}
	if err := checkUnit(prefix+".REVIEW", t.Review); err != nil {
		return err
	}
	return checkUnit(prefix+".ALLOW", t.Allow)
}

// Validate checks the whole config. It is the single gate between a config
// file and a running process: every invariant that would otherwise have to be
// re-checked per decision is enforced here instead, so a process that starts
// can trust its config for its whole lifetime.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		metrics.ValidationErrors.Inc()
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if c.Version == "" {
		return fmt.Errorf("policy config: version is required")
	}
	if c.ModelVersion == "" {
		return fmt.Errorf("policy config: model_version is required")
	}
	if err := c.Toxicity.validate("toxicity_by_action"); err != nil {
		return err
	}
	if _, ok := moderation.KnownLabels[moderation.Label(c.AllowLabel)]; !ok {
		return fmt.Errorf("policy config: unknown allow_label %q", c.AllowLabel)
	}
	if !reasonCodePattern.MatchString(c.AllowReasonCode) {
		return fmt.Errorf("policy config: allow_reason_code %q does not match %s",
			c.AllowReasonCode, reasonCodePattern)
	}
	if err := checkUnit("allow_confidence", c.AllowConfidence); err != nil {
		return err
	}

	seenLangs := make(map[string]struct{}, len(c.LanguagePriority))
	for _, lang := range c.LanguagePriority {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			return fmt.Errorf("policy config: language_priority entries must not be empty")
		}
		if _, dup := seenLangs[lang]; dup {
			return fmt.Errorf("policy config: language_priority lists %q twice", lang)
		}
		seenLangs[lang] = struct{}{}
	}

	cl := c.ClaimLikeness
	if err := checkUnit("claim_likeness.medium_threshold", cl.MediumThreshold); err != nil {
		return err
	}
	if err := checkUnit("claim_likeness.high_threshold", cl.HighThreshold); err != nil {
		return err
	}
	if cl.MediumThreshold >= cl.HighThreshold {
		return fmt.Errorf("policy config: claim_likeness medium_threshold (%v) must be below high_threshold (%v)",
			cl.MediumThreshold, cl.HighThreshold)
	}

	if c.ElectoralPhase != "" {
		if _, ok := KnownPhases[c.ElectoralPhase]; !ok {
			return fmt.Errorf("policy config: unknown electoral_phase %q", c.ElectoralPhase)
		}
	}
	if c.DeploymentStage != "" {
		if _, ok := KnownStages[c.DeploymentStage]; !ok {
			return fmt.Errorf("policy config: unknown deployment_stage %q", c.DeploymentStage)
		}
	}

	for phase, override := range c.PhaseOverrides {
		if _, ok := KnownPhases[phase]; !ok {
			return fmt.Errorf("policy config: phase_overrides references unknown phase %q", phase)
		}
		if err := validateOverride(phase, override, c.Toxicity); err != nil {
			return err
		}
	}
	return nil
}

// validateOverride enforces, at load time, that no phase profile can weaken
// enforcement relative to the baseline.
func validateOverride(phase ElectoralPhase, o PhaseOverride, baseline ToxicityByAction) error {
	prefix := fmt.Sprintf("phase_overrides.%s", phase)
	if o.ToxicityByAction != nil {
		if err := o.ToxicityByAction.validate(prefix + ".toxicity_by_action"); err != nil {
			return err
		}
		if o.ToxicityByAction.Block < baseline.Block {
			return fmt.Errorf("policy config: %s lowers the BLOCK toxicity threshold below baseline (%v < %v)",
				prefix, o.ToxicityByAction.Block, baseline.Block)
		}
	}
	if o.AllowConfidence != nil {
		if err := checkUnit(prefix+".allow_confidence", *o.AllowConfidence); err != nil {
			return err
		}
	}
	if o.VectorMatchThreshold != nil {
		if err := checkUnit(prefix+".vector_match_threshold", *o.VectorMatchThreshold); err != nil {
			return err
		}
	}
	switch o.NoMatchAction {
	case "", string(moderation.ActionAllow), string(moderation.ActionReview):
	default:
		return fmt.Errorf("policy config: %s.no_match_action must be ALLOW or REVIEW, got %q",
			prefix, o.NoMatchAction)
	}
	return nil
}
