// Package standards enforces enterprise coding standards: naming
// conventions, logging presence around functions and error paths, and
// error-handling hygiene.
package standards

import (
	"regexp"
	"strings"

	"github.com/guardrail-hq/guardrail/core/rulepack"
	"github.com/guardrail-hq/guardrail/core/violations"
)

var (
	funcDefRe  = regexp.MustCompile(`def\s+([A-Za-z_][A-Za-z0-9_]*)`)
	classDefRe = regexp.MustCompile(`class\s+([A-Za-z_][A-Za-z0-9_]*)`)
	constDefRe = regexp.MustCompile(`^([A-Z_][A-Z0-9_]*)\s*=`)

	snakeCaseRe      = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	pascalCaseRe     = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	upperSnakeCaseRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

	raiseOrExceptRe = regexp.MustCompile(`\b(raise|except)\b`)
	bareExceptRe    = regexp.MustCompile(`except\s*:\s*$`)
	catchAllRe      = regexp.MustCompile(`except\s+(Exception|BaseException)\b.*:`)
)

// logWindow is how many lines around a statement are searched for a logging
// call.
const logWindow = 3

// Analyzer checks files against the built-in coding standards. It carries no
// per-file state and is safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer returns a standards Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// AnalyzeFile checks naming conventions, logging presence, and error
// handling. customStandards is accepted for forward compatibility with
// policy-defined standards and is currently not interpreted; passing it must
// never fail the analysis.
func (a *Analyzer) AnalyzeFile(path, content string, isCopilot bool, customStandards []rulepack.Rule) []violations.Violation {
	_ = customStandards

	set := violations.NewSet()
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		lineNum := i + 1

		a.checkNaming(set, path, line, lineNum, isCopilot)
		a.checkLogging(set, path, lines, line, lineNum, isCopilot)
		a.checkErrorHandling(set, path, lines, line, lineNum, isCopilot)
	}
	return set.Violations()
}

func (a *Analyzer) checkNaming(set *violations.Set, path, line string, lineNum int, isCopilot bool) {
	if m := funcDefRe.FindStringSubmatch(line); m != nil && !snakeCaseRe.MatchString(m[1]) {
		set.Add(standardViolation("STD005", "Function Naming Convention Violation",
			violations.SeverityLow, path, line, lineNum, isCopilot,
			"Function '"+m[1]+"' does not follow snake_case convention",
			"Functions should use snake_case naming (e.g., 'get_user_data' not '"+m[1]+"')",
			"Rename the function to snake_case"))
	}

	if m := classDefRe.FindStringSubmatch(line); m != nil && !pascalCaseRe.MatchString(m[1]) {
		set.Add(standardViolation("STD006", "Class Naming Convention Violation",
			violations.SeverityLow, path, line, lineNum, isCopilot,
			"Class '"+m[1]+"' does not follow PascalCase convention",
			"Classes should use PascalCase naming (e.g., 'UserService' not '"+m[1]+"')",
			"Rename the class to PascalCase"))
	}

	if m := constDefRe.FindStringSubmatch(line); m != nil && !upperSnakeCaseRe.MatchString(m[1]) {
		set.Add(standardViolation("STD007", "Constant Naming Convention Violation",
			violations.SeverityLow, path, line, lineNum, isCopilot,
			"Constant '"+m[1]+"' does not follow UPPER_SNAKE_CASE convention",
			"Constants should use UPPER_SNAKE_CASE naming (e.g., 'MAX_RETRIES' not '"+m[1]+"')",
			"Rename the constant to UPPER_SNAKE_CASE: '"+strings.ToUpper(m[1])+"'"))
	}
}

func (a *Analyzer) checkLogging(set *violations.Set, path string, lines []string, line string, lineNum int, isCopilot bool) {
	if funcDefRe.MatchString(line) && !hasLoggingNearby(lines, lineNum) {
		set.Add(standardViolation("STD001", "Missing Logging in Function",
			violations.SeverityMedium, path, line, lineNum, isCopilot,
			"Missing Logging in Function",
			"Functions should include logging for debugging and monitoring",
			"Add appropriate logging: logger.info('Operation started')"))
	}

	if raiseOrExceptRe.MatchString(line) && !hasLoggingNearby(lines, lineNum) {
		set.Add(standardViolation("STD002", "Missing Error Logging",
			violations.SeverityHigh, path, line, lineNum, isCopilot,
			"Missing Error Logging",
			"Error handling should include logging for troubleshooting",
			"Add error logging: logger.error('Operation failed', exc_info=True)"))
	}
}

func (a *Analyzer) checkErrorHandling(set *violations.Set, path string, lines []string, line string, lineNum int, isCopilot bool) {
	if bareExceptRe.MatchString(line) {
		v := standardViolation("STD003", "Bare Except Clause",
			violations.SeverityHigh, path, line, lineNum, isCopilot,
			"Bare Except Clause",
			"Bare except clauses catch all exceptions including system exits",
			"Use specific exception types: except ValueError as e: logger.error(...)")
		v.Category = violations.CategoryCodeQuality
		set.Add(v)
	}

	if catchAllRe.MatchString(line) && nextStatementIsNoop(lines, lineNum) {
		v := standardViolation("STD004", "Silent Exception Handling",
			violations.SeverityMedium, path, line, lineNum, isCopilot,
			"Silent Exception Handling",
			"Silently catching exceptions hides errors and makes debugging difficult",
			"Log the exception or re-raise it instead of passing silently")
		v.Category = violations.CategoryCodeQuality
		set.Add(v)
	}
}

// hasLoggingNearby reports whether any line within the ±logWindow window
// around the 1-indexed lineNum mentions a logging call.
func hasLoggingNearby(lines []string, lineNum int) bool {
	start := lineNum - 1 - logWindow
	if start < 0 {
		start = 0
	}
	end := lineNum + logWindow
	if end > len(lines) {
		end = len(lines)
	}
	window := strings.ToLower(strings.Join(lines[start:end], "\n"))
	return strings.Contains(window, "log")
}

// nextStatementIsNoop reports whether the first non-empty line after the
// 1-indexed lineNum is a bare pass.
func nextStatementIsNoop(lines []string, lineNum int) bool {
	for i := lineNum; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		return trimmed == "pass" || trimmed == "..."
	}
	return false
}

func standardViolation(id, name string, sev violations.Severity, path, line string, lineNum int, isCopilot bool, message, explanation, fix string) violations.Violation {
	return violations.Violation{
		RuleID:             id,
		RuleName:           name,
		Category:           violations.CategoryStandard,
		Severity:           sev,
		FilePath:           path,
		LineNumber:         lineNum,
		Message:            message,
		Explanation:        explanation,
		FixSuggestion:      fix,
		CodeSnippet:        strings.TrimSpace(line),
		IsCopilotGenerated: isCopilot,
	}
}
