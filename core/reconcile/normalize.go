package reconcile

import (
	"regexp"
	"strings"
)

var (
	noisePattern      = regexp.MustCompile(`(?i)AND\s+EXTENSION|\(\s*TEMP\s*\)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize returns the join key for a file reference: the reference is
// upper-cased, the noise phrases "AND EXTENSION" and "(TEMP)" are removed,
// whitespace runs collapse to one space and the ends are trimmed.
func Normalize(ref string) string {
	if ref == "" {
		return ""
	}
	// Removal can join fragments into a new noise phrase, so repeat until stable.
	out := strings.ToUpper(ref)
	for {
		next := noisePattern.ReplaceAllString(out, " ")
		if next == out {
			break
		}
		out = next
	}
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
