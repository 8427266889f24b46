package rulepack

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// Engine matches pack rules against file content. It caches compiled
// patterns so repeated pack application across files does not recompile.
// Engine is safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewEngine returns an Engine with an initialised pattern cache.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*regexp.Regexp)}
}

// compile returns a compiled regexp for the given pattern, case-insensitive
// and multi-line, using the cache when possible.
func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	e.cache[pattern] = re
	return re, nil
}

// Scan runs every rule in the pack against the file content and returns one
// candidate violation per matching line. Rules whose patterns fail to compile
// are skipped individually. Deduplication against already-collected results
// is the caller's responsibility.
func (e *Engine) Scan(pack *Pack, filePath, content string) []violations.Violation {
	var out []violations.Violation
	lines := strings.Split(content, "\n")

	for _, rule := range pack.Rules {
		re, err := e.compile(rule.Pattern)
		if err != nil {
			slog.Warn("skipping rule pack rule with invalid pattern",
				"pack", pack.Name, "rule", rule.ID, "error", err)
			continue
		}

		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			out = append(out, violations.Violation{
				RuleID:           rule.ID,
				RuleName:         rule.Name,
				Category:         rule.Category,
				Severity:         rule.Severity,
				FilePath:         filePath,
				LineNumber:       i + 1,
				Message:          fmt.Sprintf("Rule pack violation: %s", rule.Name),
				Explanation:      rule.Explanation,
				StandardMappings: rule.StandardMappings,
				CodeSnippet:      strings.TrimSpace(line),
			})
		}
	}
	return out
}
