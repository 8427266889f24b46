package assist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// defaultAIConfidence is attached to model-reported violations that carry no
// confidence of their own.
const defaultAIConfidence = 0.85

var (
	fenceRe     = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_-]*\n)?(.*?)```")
	jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)
)

// aiViolation is the wire shape the model is prompted to emit. Numeric fields
// arrive as json.Number so both 15 and "15" parse.
type aiViolation struct {
	RuleID           string      `json:"rule_id"`
	RuleName         string      `json:"rule_name"`
	Category         string      `json:"category"`
	Severity         string      `json:"severity"`
	LineNumber       json.Number `json:"line_number"`
	Message          string      `json:"message"`
	Explanation      string      `json:"explanation"`
	FixSuggestion    string      `json:"fix_suggestion"`
	StandardMappings stringList  `json:"standard_mappings"`
}

// stringList accepts either a JSON array of strings or a single
// comma-separated string, both of which models produce.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*s = arr
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*s = nil
			return nil
		}
		parts := strings.Split(single, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*s = parts
		return nil
	}
	return fmt.Errorf("standard_mappings: expected array or string")
}

// extractJSONArray pulls the first JSON array out of a model response,
// tolerating surrounding prose and markdown fences.
func extractJSONArray(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	arr := jsonArrayRe.FindString(text)
	if arr == "" {
		return "", false
	}
	return arr, true
}

// parseViolations converts a raw analysis response into violations. Malformed
// responses yield nil; individually malformed elements are dropped with a
// warning rather than failing the whole batch.
func parseViolations(raw, filePath string, isCopilot bool) []violations.Violation {
	arr, ok := extractJSONArray(raw)
	if !ok {
		slog.Warn("ai response contained no JSON array", "file", filePath)
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &elems); err != nil {
		slog.Warn("ai response array did not parse", "file", filePath, "error", err)
		return nil
	}

	out := make([]violations.Violation, 0, len(elems))
	for i, elem := range elems {
		var av aiViolation
		if err := json.Unmarshal(elem, &av); err != nil {
			slog.Warn("dropping malformed ai violation", "file", filePath, "index", i, "error", err)
			continue
		}
		if av.RuleID == "" || av.Message == "" {
			slog.Warn("dropping ai violation missing rule_id or message", "file", filePath, "index", i)
			continue
		}

		sev, err := violations.ParseSeverity(av.Severity)
		if err != nil {
			sev = violations.SeverityMedium
		}
		line := 1
		if n, err := av.LineNumber.Int64(); err == nil && n > 0 {
			line = int(n)
		}

		out = append(out, violations.Violation{
			RuleID:             av.RuleID,
			RuleName:           av.RuleName,
			Category:           parseCategory(av.Category),
			Severity:           sev,
			FilePath:           filePath,
			LineNumber:         line,
			Message:            av.Message,
			Explanation:        av.Explanation,
			FixSuggestion:      av.FixSuggestion,
			StandardMappings:   av.StandardMappings,
			IsCopilotGenerated: isCopilot,
			AIConfidence:       defaultAIConfidence,
		})
	}
	return out
}

func parseCategory(s string) violations.Category {
	switch violations.Category(strings.ToLower(strings.TrimSpace(s))) {
	case violations.CategorySecurity:
		return violations.CategorySecurity
	case violations.CategoryCompliance:
		return violations.CategoryCompliance
	case violations.CategoryCodeQuality:
		return violations.CategoryCodeQuality
	case violations.CategoryLicense:
		return violations.CategoryLicense
	case violations.CategoryIPRisk:
		return violations.CategoryIPRisk
	case violations.CategoryStandard:
		return violations.CategoryStandard
	default:
		return violations.CategoryCodeQuality
	}
}
