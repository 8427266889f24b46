package duplicate

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

var (
	hashCommentRe  = regexp.MustCompile(`(?m)#.*$`)
	slashCommentRe = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	identifierRe   = regexp.MustCompile(`\b[a-z_][a-z0-9_]*\b`)
)

// normalize strips comments, collapses whitespace, and replaces lowercase
// identifiers with a placeholder so that renaming locals does not change the
// fingerprint.
func normalize(code string) string {
	code = hashCommentRe.ReplaceAllString(code, "")
	code = slashCommentRe.ReplaceAllString(code, "")
	code = blockCommentRe.ReplaceAllString(code, "")
	code = whitespaceRe.ReplaceAllString(code, " ")
	code = identifierRe.ReplaceAllString(code, "VAR")
	return code
}

// Fingerprint returns the fixed-width hex digest of the structurally
// normalized code. Identifier renames and whitespace or comment changes do
// not affect the result.
func Fingerprint(code string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalize(code))))
}

// similarity is the fraction of matching characters at equal positions,
// normalized by the longer digest length. Equal digests score 1.0. This is a
// weak proxy for code similarity; the threshold is a policy knob rather than
// a semantic guarantee.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	if longer == 0 {
		return 0
	}
	return float64(matches) / float64(longer)
}
