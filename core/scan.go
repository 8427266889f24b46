// Package core provides the scan orchestrator for guardrail: it composes the
// analysis engines over a file batch, aggregates their violations, and
// computes the enforcement decision.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/guardrail-hq/guardrail/assist"
	"github.com/guardrail-hq/guardrail/core/analyzers/duplicate"
	"github.com/guardrail-hq/guardrail/core/analyzers/license"
	"github.com/guardrail-hq/guardrail/core/analyzers/standards"
	"github.com/guardrail-hq/guardrail/core/analyzers/static"
	"github.com/guardrail-hq/guardrail/core/copilot"
	"github.com/guardrail-hq/guardrail/core/policy"
	"github.com/guardrail-hq/guardrail/core/violations"
)

// ErrCanceled indicates the scan's context was canceled before completion.
// Already-collected violations are discarded.
var ErrCanceled = errors.New("scan canceled")

// ValidationError reports a malformed ScanRequest. It surfaces as HTTP 400.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// FileInput is a single file submitted for scanning.
type FileInput struct {
	Path     string         `json:"path"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ScanRequest describes a batch of files to scan on behalf of a repository.
type ScanRequest struct {
	Repository        string         `json:"repository"`
	PullRequestNumber int            `json:"pull_request_number,omitempty"`
	CommitSHA         string         `json:"commit_sha,omitempty"`
	BaseSHA           string         `json:"base_sha,omitempty"`
	Files             []FileInput    `json:"files"`
	PolicyConfig      map[string]any `json:"policy_config,omitempty"`
	DetectCopilot     bool           `json:"detect_copilot"`
	OverrideBlocking  bool           `json:"override_blocking"`
}

// ScanResult is the complete outcome of one scan.
type ScanResult struct {
	ScanID            string                     `json:"scan_id"`
	Repository        string                     `json:"repository"`
	Timestamp         time.Time                  `json:"timestamp"`
	Violations        []violations.Violation     `json:"violations"`
	Summary           violations.Summary         `json:"summary"`
	EnforcementAction violations.EnforcementMode `json:"enforcement_action"`
	CanMerge          bool                       `json:"can_merge"`
	CopilotDetected   bool                       `json:"copilot_detected"`
	ProcessingTimeMS  int64                      `json:"processing_time_ms"`
}

// defaultMaxParallel bounds per-file analysis fan-out within one scan.
const defaultMaxParallel = 8

// fixContextLines is how much surrounding code accompanies a fix request.
const fixContextLines = 10

// genericFixPhrases identify canned static suggestions worth upgrading with a
// contextual fix from the AI adapter.
var genericFixPhrases = []string{
	"use environment variables",
	"use safer alternatives",
	"implement strict input validation",
	"use parameterized queries",
}

// Scanner composes the analysis engines. It is safe for concurrent use; all
// per-scan state lives on the stack of Scan.
type Scanner struct {
	static     *static.Analyzer
	standards  *standards.Analyzer
	license    *license.Analyzer
	duplicates *duplicate.Detector
	copilot    *copilot.Detector
	policies   *policy.Engine
	ai         *assist.Analyzer

	residencyRegion string
	retainCode      bool
	maxParallel     int
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithAIAnalyzer attaches the AI adapter. A nil or disabled analyzer leaves
// AI analysis off.
func WithAIAnalyzer(a *assist.Analyzer) ScannerOption {
	return func(s *Scanner) { s.ai = a }
}

// WithDataResidency records the residency region and code-retention flag.
// Both are enforced as logging constraints: scans never persist file content.
func WithDataResidency(region string, retainCode bool) ScannerOption {
	return func(s *Scanner) {
		s.residencyRegion = region
		s.retainCode = retainCode
	}
}

// WithMaxParallel bounds concurrent per-file analysis.
func WithMaxParallel(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// WithSimilarityThreshold tunes the duplicate detector.
func WithSimilarityThreshold(t float64) ScannerOption {
	return func(s *Scanner) {
		s.duplicates = duplicate.NewDetector(duplicate.WithSimilarityThreshold(t))
	}
}

// NewScanner builds a Scanner around the given policy engine.
func NewScanner(policies *policy.Engine, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		static:      static.NewAnalyzer(),
		standards:   standards.NewAnalyzer(),
		license:     license.NewAnalyzer(),
		duplicates:  duplicate.NewDetector(),
		copilot:     copilot.NewDetector(),
		policies:    policies,
		maxParallel: defaultMaxParallel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// fileOutcome carries one file's analysis results back to the aggregation
// step, keyed by input position so final ordering follows the request.
type fileOutcome struct {
	violations []violations.Violation
	isCopilot  bool
}

// Scan runs the full pipeline over the request. It returns a ValidationError
// for malformed requests, ErrCanceled if the context expires, and otherwise
// always succeeds: per-file engine failures degrade the result rather than
// failing it.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if strings.TrimSpace(req.Repository) == "" {
		return nil, &ValidationError{Detail: "repository is required"}
	}

	scanID := uuid.NewString()
	start := time.Now()

	slog.Info("scan started",
		"scan_id", scanID,
		"repository", req.Repository,
		"files", len(req.Files),
		"residency_region", s.residencyRegion,
		"code_retention", s.retainCode)

	pol := s.policies.GetPolicy(req.Repository)
	if len(req.PolicyConfig) > 0 {
		var err error
		pol, err = pol.ApplyOverride(req.PolicyConfig)
		if err != nil {
			return nil, &ValidationError{Detail: fmt.Sprintf("invalid policy_config: %v", err)}
		}
	}

	outcomes := make([]fileOutcome, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for i, f := range req.Files {
		if f.Path == "" {
			slog.Warn("skipping file with no path", "scan_id", scanID)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.analyzeFile(gctx, f, req.DetectCopilot, pol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
	}

	copilotDetected := false
	var all []violations.Violation
	for _, o := range outcomes {
		if o.isCopilot {
			copilotDetected = true
		}
		all = append(all, o.violations...)
	}

	// Policy filter, then rule packs on top of the filtered set. Pack output
	// goes through the filter again so pack rules cannot bypass the policy's
	// toggles or severity threshold.
	set := violations.NewSet()
	for _, v := range pol.Filter(all) {
		set.Add(v)
	}
	if len(pol.RulePacks) > 0 {
		for i, f := range req.Files {
			if f.Path == "" {
				continue
			}
			s.policies.ApplyRulePacks(pol.RulePacks, f.Path, f.Content, outcomes[i].isCopilot, set)
		}
	}
	final := pol.Filter(set.Violations())

	dupFiles := make([]duplicate.File, 0, len(req.Files))
	for _, f := range req.Files {
		dupFiles = append(dupFiles, duplicate.File{Path: f.Path, Content: f.Content})
	}
	dups, err := s.duplicates.DetectDuplicates(ctx, dupFiles, req.Repository)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}
		slog.Warn("duplicate detection failed", "scan_id", scanID, "error", err)
	}
	final = append(final, dups...)

	decision := pol.DetermineEnforcement(final, req.OverrideBlocking)

	result := &ScanResult{
		ScanID:            scanID,
		Repository:        req.Repository,
		Timestamp:         start.UTC(),
		Violations:        final,
		Summary:           violations.Summarize(final),
		EnforcementAction: decision.Action,
		CanMerge:          decision.CanMerge,
		CopilotDetected:   copilotDetected,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
	}

	slog.Info("scan completed",
		"scan_id", scanID,
		"repository", req.Repository,
		"violations", len(final),
		"enforcement", result.EnforcementAction,
		"can_merge", result.CanMerge,
		"duration_ms", result.ProcessingTimeMS)
	return result, nil
}

// analyzeFile runs the per-file engines in fixed order: static, AI, license,
// standards. Engine failures are logged and the remaining engines still run.
func (s *Scanner) analyzeFile(ctx context.Context, f FileInput, detectCopilot bool, pol policy.Config) fileOutcome {
	var out fileOutcome

	if detectCopilot {
		out.isCopilot = s.copilot.Detect(f.Content, f.Metadata)
		if out.isCopilot {
			slog.Info("copilot code detected", "file", f.Path)
		}
	}

	staticViolations := s.static.AnalyzeFile(f.Path, f.Content, out.isCopilot)

	if s.ai.Enabled() {
		aiViolations, err := s.ai.AnalyzeCode(ctx, f.Path, f.Content, out.isCopilot)
		if err != nil {
			slog.Warn("ai analysis failed", "file", f.Path, "error", err)
		}
		s.upgradeGenericFixes(ctx, f.Content, staticViolations)
		out.violations = append(out.violations, staticViolations...)
		out.violations = append(out.violations, aiViolations...)
	} else {
		out.violations = append(out.violations, staticViolations...)
	}

	licenseViolations := s.license.CheckFile(f.Path, f.Content)
	for i := range licenseViolations {
		licenseViolations[i].IsCopilotGenerated = out.isCopilot
	}
	out.violations = append(out.violations, licenseViolations...)

	out.violations = append(out.violations,
		s.standards.AnalyzeFile(f.Path, f.Content, out.isCopilot, pol.CustomRules)...)

	return out
}

// upgradeGenericFixes replaces canned static fix suggestions with contextual
// ones from the AI adapter. Failures keep the existing suggestion.
func (s *Scanner) upgradeGenericFixes(ctx context.Context, content string, vs []violations.Violation) {
	lines := strings.Split(content, "\n")
	for i := range vs {
		if !isGenericFix(vs[i].FixSuggestion) {
			continue
		}
		lo := max(0, vs[i].LineNumber-fixContextLines)
		hi := min(len(lines), vs[i].LineNumber+fixContextLines)
		codeContext := strings.Join(lines[lo:hi], "\n")

		fix, err := s.ai.SuggestFix(ctx, vs[i], codeContext)
		if err != nil {
			slog.Warn("fix suggestion failed", "rule", vs[i].RuleID, "error", err)
			continue
		}
		if fix != "" {
			vs[i].FixSuggestion = fix
		}
	}
}

func isGenericFix(fix string) bool {
	if fix == "" {
		return true
	}
	lower := strings.ToLower(fix)
	for _, phrase := range genericFixPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
