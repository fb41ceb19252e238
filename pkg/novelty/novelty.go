// Package novelty rejects near-duplicate generated topics against recent
// history and guarantees topic generation always yields something usable.
package novelty

import (
	"strings"
	"unicode"
)

// minSubstringRunes is the smallest normalized title that can flag a
// duplicate by containment; shorter fragments match too easily.
const minSubstringRunes = 10

// Normalize lower-cases a title and strips all whitespace, punctuation and
// symbol runes (including CJK punctuation) so cosmetic differences do not
// defeat the duplicate check.
func Normalize(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsDuplicate reports whether candidate collides with any recent title:
// identical normalized forms, or one normalized form of at least
// minSubstringRunes runes contained in the other.
func IsDuplicate(candidate string, recent []string) bool {
	c := Normalize(candidate)
	if c == "" {
		return false
	}
	for _, t := range recent {
		n := Normalize(t)
		if n == "" {
			continue
		}
		if c == n {
			return true
		}
		short, long := c, n
		if len([]rune(short)) > len([]rune(long)) {
			short, long = long, short
		}
		if len([]rune(short)) >= minSubstringRunes && strings.Contains(long, short) {
			return true
		}
	}
	return false
}
