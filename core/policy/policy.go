// Package policy resolves per-repository and per-organization scan policies,
// filters violations against them, applies organizational rule packs, and
// determines the enforcement action for a scan.
package policy

import (
	"errors"
	"fmt"

	"github.com/guardrail-hq/guardrail/core/rulepack"
	"github.com/guardrail-hq/guardrail/core/violations"
)

// ErrPolicyNotFound indicates no stored policy exists for the requested
// repository or organization.
var ErrPolicyNotFound = errors.New("policy not found")

// Config defines how scans of a repository are evaluated and enforced.
type Config struct {
	EnforcementMode       violations.EnforcementMode `json:"enforcement_mode" yaml:"enforcement_mode"`
	EnabledRules          []string                   `json:"enabled_rules" yaml:"enabled_rules"`
	DisabledRules         []string                   `json:"disabled_rules" yaml:"disabled_rules"`
	SeverityThreshold     violations.Severity        `json:"severity_threshold" yaml:"severity_threshold"`
	CustomRules           []rulepack.Rule            `json:"custom_rules" yaml:"custom_rules"`
	RulePacks             []string                   `json:"rule_packs" yaml:"rule_packs"`
	AllowBlockingOverride bool                       `json:"allow_blocking_override" yaml:"allow_blocking_override"`
}

// Default returns the policy applied when neither a repository nor an
// organization policy exists.
func Default() Config {
	return Config{
		EnforcementMode:       violations.EnforcementWarning,
		SeverityThreshold:     violations.SeverityMedium,
		AllowBlockingOverride: true,
	}
}

// ApplyOverride returns a copy of the config with the given per-request
// overrides applied. Unknown keys and invalid values are validation errors.
func (c Config) ApplyOverride(override map[string]any) (Config, error) {
	out := c
	for key, raw := range override {
		switch key {
		case "enforcement_mode":
			s, ok := raw.(string)
			if !ok {
				return out, fmt.Errorf("enforcement_mode: expected string")
			}
			mode, err := violations.ParseEnforcementMode(s)
			if err != nil {
				return out, err
			}
			out.EnforcementMode = mode
		case "severity_threshold":
			s, ok := raw.(string)
			if !ok {
				return out, fmt.Errorf("severity_threshold: expected string")
			}
			sev, err := violations.ParseSeverity(s)
			if err != nil {
				return out, err
			}
			out.SeverityThreshold = sev
		case "enabled_rules":
			list, err := toStringList(key, raw)
			if err != nil {
				return out, err
			}
			out.EnabledRules = list
		case "disabled_rules":
			list, err := toStringList(key, raw)
			if err != nil {
				return out, err
			}
			out.DisabledRules = list
		case "rule_packs":
			list, err := toStringList(key, raw)
			if err != nil {
				return out, err
			}
			out.RulePacks = list
		case "allow_blocking_override":
			b, ok := raw.(bool)
			if !ok {
				return out, fmt.Errorf("allow_blocking_override: expected bool")
			}
			out.AllowBlockingOverride = b
		default:
			return out, fmt.Errorf("unknown policy override key %q", key)
		}
	}
	return out, nil
}

func toStringList(key string, raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected list of strings", key)
	}
}

// Filter applies the policy's rule toggles and severity threshold to a list
// of violations. Disabled rules always lose; an explicit enabled list admits
// only its members; everything surviving the toggles must meet the severity
// threshold.
func (c Config) Filter(vs []violations.Violation) []violations.Violation {
	disabled := make(map[string]struct{}, len(c.DisabledRules))
	for _, id := range c.DisabledRules {
		disabled[id] = struct{}{}
	}
	var enabled map[string]struct{}
	if len(c.EnabledRules) > 0 {
		enabled = make(map[string]struct{}, len(c.EnabledRules))
		for _, id := range c.EnabledRules {
			enabled[id] = struct{}{}
		}
	}

	out := make([]violations.Violation, 0, len(vs))
	for _, v := range vs {
		if _, off := disabled[v.RuleID]; off {
			continue
		}
		if enabled != nil {
			if _, on := enabled[v.RuleID]; !on {
				continue
			}
		}
		if !v.Severity.AtLeast(c.SeverityThreshold) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Decision is the enforcement outcome for a completed scan.
type Decision struct {
	Action   violations.EnforcementMode `json:"action"`
	CanMerge bool                       `json:"can_merge"`
}

// DetermineEnforcement evaluates the policy's enforcement mode against the
// filtered violations. The rules are checked top-down; the first matching row
// wins.
func (c Config) DetermineEnforcement(vs []violations.Violation, overrideRequested bool) Decision {
	if len(vs) == 0 {
		return Decision{Action: violations.EnforcementAdvisory, CanMerge: true}
	}

	anyCritical := false
	anyHigh := false
	copilotCritical := false
	for _, v := range vs {
		switch v.Severity {
		case violations.SeverityCritical:
			anyCritical = true
			if v.IsCopilotGenerated {
				copilotCritical = true
			}
		case violations.SeverityHigh:
			anyHigh = true
		}
	}

	switch c.EnforcementMode {
	case violations.EnforcementAdvisory:
		return Decision{Action: violations.EnforcementAdvisory, CanMerge: true}

	case violations.EnforcementWarning:
		if anyCritical || copilotCritical {
			return Decision{Action: violations.EnforcementWarning, CanMerge: true}
		}
		return Decision{Action: violations.EnforcementAdvisory, CanMerge: true}

	case violations.EnforcementBlocking:
		if overrideRequested && c.AllowBlockingOverride {
			if anyCritical || anyHigh {
				return Decision{Action: violations.EnforcementWarning, CanMerge: true}
			}
			return Decision{Action: violations.EnforcementAdvisory, CanMerge: true}
		}
		if copilotCritical {
			return Decision{Action: violations.EnforcementBlocking, CanMerge: false}
		}
		if anyCritical || anyHigh {
			return Decision{Action: violations.EnforcementBlocking, CanMerge: false}
		}
		return Decision{Action: violations.EnforcementAdvisory, CanMerge: true}
	}

	// Unknown modes fall back to the default policy's behavior.
	return Decision{Action: violations.EnforcementAdvisory, CanMerge: true}
}
