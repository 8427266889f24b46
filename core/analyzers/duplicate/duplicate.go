// Package duplicate detects near-duplicate code across the files of a scan
// batch. Function-like units are extracted per file, reduced to normalized
// fingerprints, and compared pairwise; pairs above the similarity threshold
// are reported as IP risk.
package duplicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// DefaultSimilarityThreshold is the fraction of matching digest positions at
// which two units are considered near-duplicates.
const DefaultSimilarityThreshold = 0.85

// snippetLimit truncates the code snippet attached to a finding.
const snippetLimit = 200

// File is one input file of the batch.
type File struct {
	Path    string
	Content string
}

// Detector compares function fingerprints across files. It carries no state
// between calls and is safe for concurrent use.
type Detector struct {
	threshold float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithSimilarityThreshold overrides the default similarity threshold.
// Values outside (0, 1] are ignored.
func WithSimilarityThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

// NewDetector creates a Detector with the given options.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{threshold: DefaultSimilarityThreshold}
	for _, o := range opts {
		o(d)
	}
	return d
}

// DetectDuplicates extracts units from every file and reports one violation
// per cross-file pair whose fingerprints are at least threshold-similar.
// Pairs within the same file are ignored. The reported violation points at
// the unit from the file that appears earlier in the batch, so swapping file
// order does not change the reported pair set.
func (d *Detector) DetectDuplicates(ctx context.Context, files []File, repository string) ([]violations.Violation, error) {
	var units []unit
	for _, f := range files {
		if f.Path == "" || f.Content == "" {
			continue
		}
		units = append(units, extractUnits(ctx, f.Path, f.Content)...)
	}

	digests := make([]string, len(units))
	for i := range units {
		digests[i] = Fingerprint(units[i].code)
	}

	set := violations.NewSet()
	for i := 0; i < len(units); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(units); j++ {
			if units[i].file == units[j].file {
				continue
			}

			score := similarity(digests[i], digests[j])
			if score < d.threshold {
				continue
			}

			snippet := units[i].code
			if len(snippet) > snippetLimit {
				snippet = snippet[:snippetLimit] + "..."
			}

			set.Add(violations.Violation{
				RuleID:     "IP001",
				RuleName:   "Near-Duplicate Code Detected",
				Category:   violations.CategoryIPRisk,
				Severity:   violations.SeverityMedium,
				FilePath:   units[i].file,
				LineNumber: units[i].startLine,
				Message: fmt.Sprintf("Code in '%s' is similar to '%s' in %s",
					units[i].name, units[j].name, units[j].file),
				Explanation: fmt.Sprintf("Near-duplicate code detected (%.0f%% similarity). This may indicate "+
					"code copying, potential IP risks, or need for refactoring into shared utilities.", score*100),
				FixSuggestion: "Consider refactoring common code into a shared utility function or module " +
					"to reduce duplication and potential IP risks.",
				StandardMappings: []string{"CWE-1049", "CWE-1050"},
				CodeSnippet:      strings.TrimSpace(snippet),
			})
		}
	}
	return set.Violations(), nil
}
