package generic

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// =============================================================================
// KEY NORMALIZER - Join keys that survive formatting differences
// =============================================================================

// NormalizePlate canonicalizes a vehicle plate: all whitespace removed, upper
// case. Idempotent, so normalized plates can be normalized again safely.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// ResolveHeader returns the first candidate (in caller priority order) that
// matches one of the available headers, compared case-insensitively. The
// returned name is the header as it appears in the data so it can index rows.
func ResolveHeader(candidates []string, available []string) (string, bool) {
	for _, c := range candidates {
		want := strings.TrimSpace(c)
		for _, h := range available {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return h, true
			}
		}
	}
	return "", false
}

// SuggestHeader finds the available header closest to any candidate, for
// "did you mean" hints on configuration errors. Returns "" when nothing is
// reasonably close.
func SuggestHeader(candidates []string, available []string) string {
	best := ""
	bestRatio := 0.4
	for _, c := range candidates {
		want := strings.ToLower(strings.TrimSpace(c))
		for _, h := range available {
			got := strings.ToLower(strings.TrimSpace(h))
			longest := len(want)
			if len(got) > longest {
				longest = len(got)
			}
			if longest == 0 {
				continue
			}
			ratio := float64(levenshtein.ComputeDistance(want, got)) / float64(longest)
			if ratio < bestRatio {
				best, bestRatio = h, ratio
			}
		}
	}
	return best
}
