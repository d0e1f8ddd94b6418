// Package names implements the name resolution engine: matching a free-text
// name reference to a specific attendee with calibrated confidence.
package names

import (
	"strings"
	"unicode"
)

// diacriticFolds maps accented letters intake text commonly contains to
// their ASCII base. Broader Unicode folding is overkill for roster names.
var diacriticFolds = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n', 'ç': 'c', 'ý': 'y',
}

// Normalize lowercases a name, folds diacritics, drops punctuation, and
// collapses whitespace. All matching strategies operate on normalized text.
func Normalize(name string) string {
	var b strings.Builder
	lastSpace := true

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if folded, ok := diacriticFolds[r]; ok {
			r = folded
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '\'':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// SplitName returns the first and last tokens of a normalized name. A
// single-token reference ("Maddie") has an empty last name.
func SplitName(normalized string) (first, last string) {
	parts := strings.Fields(normalized)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}
