package grading

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// fold maps full-width forms to their narrow equivalents and case-folds, so
// "ＩＯＰ" and "iop" compare equal.
func fold(s string) string {
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(width.Fold.String(s))
}

// containsFolded reports whether needle occurs in haystack ignoring case and
// character width.
func containsFolded(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}

// similarity is the Ratcliff/Obershelp ratio 2·M/T of a and b, where M is the
// number of runes in matching blocks found by recursively taking the longest
// common substring. Both strings are lower-cased first.
func similarity(a, b string) float64 {
	ar := []rune(strings.ToLower(a))
	br := []rune(strings.ToLower(b))
	total := len(ar) + len(br)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ar, br)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	i, j, n := longestMatch(a, b)
	if n == 0 {
		return 0
	}
	return n + matchingRunes(a[:i], b[:j]) + matchingRunes(a[i+n:], b[j+n:])
}

// longestMatch finds the longest common substring of a and b, preferring the
// earliest start in a, then in b.
func longestMatch(a, b []rune) (bestI, bestJ, bestN int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestN {
					bestN = cur[j]
					bestI, bestJ = i-cur[j], j-cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestN
}

// runeLen counts characters of the trimmed text.
func runeLen(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}
