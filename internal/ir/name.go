package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalName converts a statistic title to the name used as a key:
// NFC normalized, trimmed, lower case, with runs of spaces replaced by a
// single underscore. "Rest HR" becomes "rest_hr".
func CanonicalName(title string) string {
	s := strings.ToLower(norm.NFC.String(strings.TrimSpace(title)))
	return strings.Join(strings.Fields(s), "_")
}

// CoverageName is the statistic that records coverage for name.
func CoverageName(title string) string {
	return "Coverage " + title
}
