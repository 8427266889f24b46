// Package rulepack implements the YAML-based custom rule packs that
// organizations layer on top of the built-in analyzers. Packs are loaded from
// YAML files, matched against file content line by line, and produce
// canonical Violation values from core/violations.
package rulepack

import (
	"fmt"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// Rule is a single declarative rule inside a pack. The pattern is a regular
// expression compiled case-insensitively in multi-line mode.
type Rule struct {
	ID               string               `yaml:"id" json:"id"`
	Name             string               `yaml:"name" json:"name"`
	Pattern          string               `yaml:"pattern" json:"pattern"`
	Category         violations.Category  `yaml:"category" json:"category"`
	Severity         violations.Severity  `yaml:"severity" json:"severity"`
	Explanation      string               `yaml:"explanation" json:"explanation"`
	StandardMappings []string             `yaml:"standard_mappings" json:"standard_mappings,omitempty"`
}

// Pack is a named bundle of rules applicable on top of the built-in
// analyzers. Pack name defaults to the file stem when loaded from disk.
type Pack struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Version     string `yaml:"version" json:"version"`
	Rules       []Rule `yaml:"rules" json:"rules"`
}

// Info is the summary shape returned by the rule-pack listing endpoint.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RulesCount  int    `json:"rules_count"`
	Version     string `json:"version"`
}

// Info returns the pack's listing summary.
func (p *Pack) Info() Info {
	return Info{
		Name:        p.Name,
		Description: p.Description,
		RulesCount:  len(p.Rules),
		Version:     p.Version,
	}
}

// Validate checks that a rule satisfies the mandatory constraints. Pattern
// compilation is deferred to scan time so a single bad pattern skips that
// rule rather than rejecting the whole pack.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID must not be empty")
	}
	if r.Pattern == "" {
		return fmt.Errorf("rule %s: pattern must not be empty", r.ID)
	}
	if _, err := violations.ParseSeverity(string(r.Severity)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}
