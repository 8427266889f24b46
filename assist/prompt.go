package assist

import (
	"fmt"
	"strings"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// maxPromptContent truncates file content embedded in the analysis prompt.
const maxPromptContent = 8000

// maxDetectContent truncates content embedded in the origin-detection prompt.
const maxDetectContent = 2000

// analysisPrompt builds the structured prompt for contextual code analysis,
// including the JSON schema the model must respond with.
func analysisPrompt(filePath, content string, isCopilot bool) string {
	copilotNote := ""
	if isCopilot {
		copilotNote = "NOTE: This code is suspected to be AI-generated (GitHub Copilot). Apply stricter security standards.\n"
	}

	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}

	return fmt.Sprintf(`You are an expert security code reviewer analyzing code for enterprise production systems.

%sFile: %s

Code to analyze:
`+"```"+`
%s
`+"```"+`

Analyze this code for:
1. Security vulnerabilities (OWASP Top 10, CWE)
2. Performance issues
3. Maintainability concerns
4. Best practice violations
5. Potential bugs or logic errors

For each issue found, provide:
- rule_id: A unique identifier (e.g., "AI001")
- rule_name: Short descriptive name
- category: security, compliance, code_quality, or standard
- severity: low, medium, high, or critical
- line_number: Line number (1-indexed)
- message: Brief issue description
- explanation: Detailed explanation of why this is a problem
- fix_suggestion: Specific code fix or improvement suggestion
- standard_mappings: OWASP/CWE mappings if applicable

Format your response as a JSON array of violations:
[
  {
    "rule_id": "AI001",
    "rule_name": "Missing Input Validation",
    "category": "security",
    "severity": "high",
    "line_number": 15,
    "message": "User input not validated",
    "explanation": "The function accepts user input without validation...",
    "fix_suggestion": "Add input validation before use",
    "standard_mappings": ["CWE-20", "OWASP-A03:2021"]
  }
]

If no issues are found, return an empty array [].`, copilotNote, filePath, content)
}

// fixPrompt asks the model for a concise fix for a single violation.
func fixPrompt(v violations.Violation, codeContext string) string {
	return fmt.Sprintf(`Provide a specific code fix for this security issue:

Issue: %s
Explanation: %s
File: %s
Line: %d

Code context:
`+"```"+`
%s
`+"```"+`

Provide only the fixed code snippet (at most 30 lines), not explanations.`,
		v.Message, v.Explanation, v.FilePath, v.LineNumber, codeContext)
}

// detectPrompt asks the model for a true/false classification of AI
// authorship.
func detectPrompt(content string) string {
	if len(content) > maxDetectContent {
		content = content[:maxDetectContent]
	}

	return fmt.Sprintf(`Analyze this code and determine if it was likely generated by GitHub Copilot or a similar AI coding assistant.

Consider:
- Code style patterns typical of AI generation
- Comment style
- Variable naming patterns
- Code structure

Code:
`+"```"+`
%s
`+"```"+`

Respond with only "true" or "false".`, content)
}

// fixPrefixes are boilerplate lead-ins stripped from unfenced fix responses.
var fixPrefixes = []string{
	"here's the fix:",
	"here's",
	"here is",
	"the fix is:",
	"the fix",
	"fix:",
	"solution:",
	"fixed code:",
}

// maxFixLength caps the returned fix suggestion.
const maxFixLength = 500

// minFixLength is the threshold below which a cleaned fix is discarded.
const minFixLength = 20

// cleanFixResponse extracts the usable fix from a raw model response: the
// first fenced code block when present, otherwise the text with common
// prefixes stripped, truncated to maxFixLength. Responses shorter than
// minFixLength after cleaning yield an empty string.
func cleanFixResponse(raw string) string {
	text := strings.TrimSpace(raw)

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	} else {
		lower := strings.ToLower(text)
		for _, prefix := range fixPrefixes {
			if strings.HasPrefix(lower, prefix) {
				text = strings.TrimSpace(text[len(prefix):])
				break
			}
		}
		if len(text) > maxFixLength {
			text = text[:maxFixLength]
		}
	}

	if len(text) < minFixLength {
		return ""
	}
	return text
}
