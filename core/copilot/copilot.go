// Package copilot classifies whether a file's content originated from an AI
// coding assistant. Classification is a per-file tag propagated into every
// violation emitted for that file, where it triggers stricter enforcement.
package copilot

import (
	"strings"
)

// DefaultHeuristicThreshold is the score at which heuristic signals classify
// content as AI-generated.
const DefaultHeuristicThreshold = 0.45

// markerKeys are metadata keys inspected for an explicit origin marker.
var markerKeys = []string{"generated_by", "source", "origin", "author", "tool"}

// aiPhrases are formatting or comment patterns typical of AI-authored code.
var aiPhrases = []string{
	"generated by copilot",
	"generated by github copilot",
	"ai-generated",
	"auto-generated by ai",
	"as an ai",
	"this code was generated",
}

// Detector classifies file origin from metadata and content heuristics. The
// classification is deterministic: identical inputs always produce the same
// boolean.
type Detector struct {
	threshold float64
}

// NewDetector returns a Detector with the default heuristic threshold.
func NewDetector() *Detector {
	return &Detector{threshold: DefaultHeuristicThreshold}
}

// Detect returns true if metadata carries an explicit Copilot marker or if
// content heuristics exceed the threshold.
func (d *Detector) Detect(content string, metadata map[string]any) bool {
	if hasExplicitMarker(metadata) {
		return true
	}
	return d.score(content) >= d.threshold
}

// hasExplicitMarker checks metadata for a Copilot flag or a marker value
// naming an AI assistant.
func hasExplicitMarker(metadata map[string]any) bool {
	if metadata == nil {
		return false
	}

	for _, key := range []string{"copilot", "is_copilot", "ai_generated"} {
		if b, ok := metadata[key].(bool); ok && b {
			return true
		}
	}

	for _, key := range markerKeys {
		s, ok := metadata[key].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		if strings.Contains(lower, "copilot") || strings.Contains(lower, "ai-assistant") {
			return true
		}
	}
	return false
}

// score combines comment density with AI-typical phrasing. Comment-heavy
// files with boilerplate phrasing score highest.
func (d *Detector) score(content string) float64 {
	lines := strings.Split(content, "\n")

	nonEmpty, comments := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*") {
			comments++
		}
	}

	score := 0.0
	if nonEmpty > 0 {
		score = float64(comments) / float64(nonEmpty)
	}

	lower := strings.ToLower(content)
	for _, phrase := range aiPhrases {
		if strings.Contains(lower, phrase) {
			score += 0.5
			break
		}
	}
	return score
}
