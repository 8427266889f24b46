// Package violations defines the canonical violation model used across all
// guardrail analyzers and the policy engine. Every engine produces Violation
// values which are collected into a Set for deduplication and downstream
// consumption by the scan orchestrator and the HTTP surface.
package violations

import (
	"fmt"
)

// Severity indicates how serious a violation is. The values are ordered from
// least to most severe; use Rank for comparisons.
type Severity string

// Severity level constants ordered from least to most severe.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank maps severity levels to numeric ranks for comparison.
// Higher rank = more severe.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// ParseSeverity validates a severity literal. Unknown literals are a
// validation error and surface as HTTP 400 at the API boundary.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Rank returns the numeric rank of the severity. Unknown severities rank
// below low so they never pass a threshold check.
func (s Severity) Rank() int {
	r, ok := severityRank[s]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether the severity is at or above the given threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// Category classifies what kind of problem a violation describes.
type Category string

// Violation categories.
const (
	CategorySecurity    Category = "security"
	CategoryCompliance  Category = "compliance"
	CategoryCodeQuality Category = "code_quality"
	CategoryLicense     Category = "license"
	CategoryIPRisk      Category = "ip_risk"
	CategoryStandard    Category = "standard"
)

// EnforcementMode is the action taken on a set of findings: report quietly,
// report loudly, or refuse the merge.
type EnforcementMode string

// Enforcement modes ordered from least to most restrictive.
const (
	EnforcementAdvisory EnforcementMode = "advisory"
	EnforcementWarning  EnforcementMode = "warning"
	EnforcementBlocking EnforcementMode = "blocking"
)

// ParseEnforcementMode validates an enforcement mode literal.
func ParseEnforcementMode(s string) (EnforcementMode, error) {
	switch m := EnforcementMode(s); m {
	case EnforcementAdvisory, EnforcementWarning, EnforcementBlocking:
		return m, nil
	default:
		return "", fmt.Errorf("unknown enforcement mode %q", s)
	}
}

// Violation is a single structured finding located at a file and line. It is
// immutable once emitted; engines construct a complete value and never mutate
// shared instances.
type Violation struct {
	RuleID             string   `json:"rule_id" yaml:"rule_id"`
	RuleName           string   `json:"rule_name" yaml:"rule_name"`
	Category           Category `json:"category" yaml:"category"`
	Severity           Severity `json:"severity" yaml:"severity"`
	FilePath           string   `json:"file_path" yaml:"file_path"`
	LineNumber         int      `json:"line_number" yaml:"line_number"`
	ColumnNumber       int      `json:"column_number,omitempty" yaml:"column_number,omitempty"`
	Message            string   `json:"message" yaml:"message"`
	Explanation        string   `json:"explanation" yaml:"explanation"`
	FixSuggestion      string   `json:"fix_suggestion,omitempty" yaml:"fix_suggestion,omitempty"`
	StandardMappings   []string `json:"standard_mappings,omitempty" yaml:"standard_mappings,omitempty"`
	CodeSnippet        string   `json:"code_snippet,omitempty" yaml:"code_snippet,omitempty"`
	IsCopilotGenerated bool     `json:"is_copilot_generated" yaml:"is_copilot_generated"`
	AIConfidence       float64  `json:"ai_confidence,omitempty" yaml:"ai_confidence,omitempty"`
}

// Key returns the deduplication key. Two violations sharing the same
// (rule_id, file_path, line_number) are duplicates and must not be emitted
// more than once by a single engine or rule-pack pass.
func (v Violation) Key() string {
	// Null-byte separators avoid ambiguous concatenations.
	return fmt.Sprintf("%s\x00%s\x00%d", v.RuleID, v.FilePath, v.LineNumber)
}

// Set is an ordered, deduplicated collection of violations. It is the primary
// structure engines use to honor the single-emission invariant.
type Set struct {
	items []Violation
	seen  map[string]struct{}
}

// NewSet returns an empty Set ready for use.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add appends a violation unless one with the same Key is already present.
// It reports whether the violation was added.
func (s *Set) Add(v Violation) bool {
	k := v.Key()
	if _, dup := s.seen[k]; dup {
		return false
	}
	s.seen[k] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Contains reports whether a violation with the given rule ID and line number
// in any file is already present. Rule-pack application uses this looser
// (rule_id, line_number) key for idempotence across repeated pack passes.
func (s *Set) Contains(ruleID string, line int) bool {
	for _, v := range s.items {
		if v.RuleID == ruleID && v.LineNumber == line {
			return true
		}
	}
	return false
}

// Violations returns the collected violations in insertion order. The caller
// must not modify the returned slice.
func (s *Set) Violations() []Violation {
	return s.items
}

// Len returns the number of collected violations.
func (s *Set) Len() int { return len(s.items) }
