// Package static implements pattern-based detection of hardcoded secrets,
// SQL injection risks, and unsafe operations. It applies three ordered rule
// tables to each line of a file and emits one violation per match.
package static

import (
	"regexp"
	"strings"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// copilotNote is appended to explanations when the file was classified as
// AI-generated, reflecting the stricter scrutiny such code receives.
const copilotNote = " This appears to be AI-generated code, which receives stricter scrutiny."

// compiledRule pairs a rule definition with its compiled pattern and the
// table-level message/explanation/fix it inherits.
type compiledRule struct {
	rule
	re          *regexp.Regexp
	message     string
	explanation string
	fix         string
}

// Analyzer holds the compiled built-in rule tables. It carries no per-file
// state and is safe for concurrent use.
type Analyzer struct {
	rules []compiledRule
}

// NewAnalyzer compiles the built-in secret, SQL-injection, and unsafe
// operation tables in order. Built-in patterns are compile-time constants;
// a failure here is a programming error.
func NewAnalyzer() *Analyzer {
	var compiled []compiledRule
	for _, table := range []ruleTable{secretRules, sqlInjectionRules, unsafeOperationRules} {
		for _, r := range table.rules {
			compiled = append(compiled, compiledRule{
				rule:        r,
				re:          regexp.MustCompile(r.pattern),
				message:     table.message + ": " + r.name,
				explanation: table.explanation,
				fix:         table.fix,
			})
		}
	}
	return &Analyzer{rules: compiled}
}

// AnalyzeFile scans the file content line by line against every rule table
// and returns the detected violations. Line numbers are 1-indexed; column
// numbers are the 1-indexed start of the first match on the line. A rule
// never emits more than one violation for the same line.
func (a *Analyzer) AnalyzeFile(path, content string, isCopilot bool) []violations.Violation {
	set := violations.NewSet()
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		for _, cr := range a.rules {
			loc := cr.re.FindStringIndex(line)
			if loc == nil {
				continue
			}

			explanation := cr.explanation
			if isCopilot {
				explanation += copilotNote
			}

			set.Add(violations.Violation{
				RuleID:             cr.id,
				RuleName:           cr.name,
				Category:           violations.CategorySecurity,
				Severity:           cr.severity,
				FilePath:           path,
				LineNumber:         i + 1,
				ColumnNumber:       loc[0] + 1,
				Message:            cr.message,
				Explanation:        explanation,
				FixSuggestion:      cr.fix,
				StandardMappings:   cr.mappings,
				CodeSnippet:        strings.TrimSpace(line),
				IsCopilotGenerated: isCopilot,
			})
		}
	}
	return set.Violations()
}
