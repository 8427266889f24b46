// Package license recognises license headers, flags restricted licenses, and
// checks third-party imports for attribution.
package license

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/guardrail-hq/guardrail/core/violations"
)

// headerLines is how many leading lines are searched for a license header.
const headerLines = 50

// licensePattern is a registered license family. Patterns are evaluated in
// order; the first match wins.
type licensePattern struct {
	family string
	re     *regexp.Regexp
}

var licensePatterns = []licensePattern{
	{"MIT", regexp.MustCompile(`(?i)MIT\s+License|The\s+MIT\s+License`)},
	{"Apache", regexp.MustCompile(`(?i)Apache\s+License|Apache-2\.0`)},
	{"GPL", regexp.MustCompile(`(?i)\b[AL]?GPL\b|GNU\s+(Affero\s+|Lesser\s+)?General\s+Public\s+License`)},
	{"BSD", regexp.MustCompile(`(?i)BSD\s+License|BSD-\d`)},
	{"Proprietary", regexp.MustCompile(`(?i)Proprietary|All\s+Rights\s+Reserved|Copyright`)},
}

// restrictedLicenses are copyleft licenses that require legal review before
// inclusion in proprietary code.
var restrictedLicenses = map[string]bool{
	"GPL-2.0":  true,
	"GPL-3.0":  true,
	"AGPL-3.0": true,
	"LGPL-2.1": true,
	"LGPL-3.0": true,
}

// thirdPartyLibraries are imports that commonly carry attribution
// requirements.
var thirdPartyLibraries = []string{
	"requests", "numpy", "pandas", "django", "flask", "tensorflow", "pytorch",
}

// Analyzer checks files for license and attribution issues. It carries no
// per-file state and is safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer returns a license Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// CheckFile scans the first 50 lines for a license header and the whole file
// for unattributed third-party imports.
func (a *Analyzer) CheckFile(path, content string) []violations.Violation {
	set := violations.NewSet()

	if id := detectLicense(content); id != "" && restrictedLicenses[id] {
		set.Add(violations.Violation{
			RuleID:     "LIC001",
			RuleName:   "Restricted License Detected",
			Category:   violations.CategoryLicense,
			Severity:   violations.SeverityHigh,
			FilePath:   path,
			LineNumber: 1,
			Message:    fmt.Sprintf("File contains %s license which may be incompatible with enterprise policies", id),
			Explanation: fmt.Sprintf("The %s license has copyleft requirements that may conflict with proprietary "+
				"software policies. Review with the legal team before including in production code.", id),
			FixSuggestion: "Consider using MIT, Apache-2.0, or BSD licenses, or obtain legal approval",
		})
	}

	a.checkImports(set, path, content)
	return set.Violations()
}

// detectLicense returns the license identifier found in the file header, or
// an empty string. GPL-family matches are refined to a concrete identifier so
// they can be compared against the restricted set.
func detectLicense(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > headerLines {
		lines = lines[:headerLines]
	}
	header := strings.Join(lines, "\n")

	for _, lp := range licensePatterns {
		if !lp.re.MatchString(header) {
			continue
		}
		if lp.family == "GPL" {
			return refineGPL(header)
		}
		return lp.family
	}
	return ""
}

// refineGPL maps a GPL-family header to its concrete SPDX-style identifier.
func refineGPL(header string) string {
	lower := strings.ToLower(header)
	switch {
	case strings.Contains(lower, "affero"):
		return "AGPL-3.0"
	case strings.Contains(lower, "lesser") && strings.Contains(lower, "2.1"):
		return "LGPL-2.1"
	case strings.Contains(lower, "lesser"):
		return "LGPL-3.0"
	case strings.Contains(lower, "version 2") || strings.Contains(lower, "gpl-2"):
		return "GPL-2.0"
	default:
		return "GPL-3.0"
	}
}

// checkImports flags registered third-party imports without an attribution
// comment elsewhere in the file.
func (a *Analyzer) checkImports(set *violations.Set, path, content string) {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		for _, lib := range thirdPartyLibraries {
			if !isImportOf(line, lib) {
				continue
			}
			if hasAttribution(lines, lib) {
				continue
			}
			set.Add(violations.Violation{
				RuleID:     "LIC002",
				RuleName:   "Missing Third-Party Attribution",
				Category:   violations.CategoryLicense,
				Severity:   violations.SeverityMedium,
				FilePath:   path,
				LineNumber: i + 1,
				Message:    fmt.Sprintf("Third-party library '%s' used without attribution", lib),
				Explanation: fmt.Sprintf("The library '%s' is used but not properly attributed. "+
					"Some licenses require attribution in documentation or source code.", lib),
				FixSuggestion: fmt.Sprintf("Add attribution for %s in LICENSE or README file", lib),
				CodeSnippet:   strings.TrimSpace(line),
			})
		}
	}
}

// isImportOf reports whether the line imports the given library.
func isImportOf(line, lib string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "import "+lib) ||
		strings.HasPrefix(trimmed, "from "+lib+" ") ||
		strings.HasPrefix(trimmed, "from "+lib+".")
}

// hasAttribution reports whether the library is mentioned in a comment line,
// which is taken as an attribution. Import statements themselves do not
// count.
func hasAttribution(lines []string, lib string) bool {
	lower := strings.ToLower(lib)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "//") &&
			!strings.HasPrefix(trimmed, "/*") && !strings.HasPrefix(trimmed, "*") {
			continue
		}
		if strings.Contains(strings.ToLower(trimmed), lower) {
			return true
		}
	}
	return false
}

// CheckDuplicateContent compares a normalized content hash against a supplied
// fingerprint map and flags exact duplicates as IP risk. The cross-file
// duplicate detector supersedes this check inside the scan pipeline; it is
// kept for callers that track fingerprints across scans.
func (a *Analyzer) CheckDuplicateContent(path, content string, fingerprints map[string]string) []violations.Violation {
	set := violations.NewSet()
	digest := fmt.Sprintf("%x", sha256.Sum256([]byte(strings.TrimSpace(content))))

	for otherPath, otherDigest := range fingerprints {
		if otherPath == path || otherDigest != digest {
			continue
		}
		set.Add(violations.Violation{
			RuleID:     "IP001",
			RuleName:   "Duplicate Code Detected",
			Category:   violations.CategoryIPRisk,
			Severity:   violations.SeverityLow,
			FilePath:   path,
			LineNumber: 1,
			Message:    fmt.Sprintf("Code appears to be duplicate of %s", otherPath),
			Explanation: "Duplicate code may indicate copied code from external sources. " +
				"Review to ensure proper licensing and attribution.",
			FixSuggestion: "Refactor to a shared utility if appropriate, or ensure proper attribution",
		})
		break
	}
	return set.Violations()
}
