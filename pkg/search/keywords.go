package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxKeywords caps the keyword set of a single entry
	MaxKeywords = 50

	// minKeywordLength is exclusive: tokens must be longer than this
	minKeywordLength = 2
)

// ExtractKeywords turns free text into an ordered set of normalized tokens.
//
// The text is lowercased, every non-word character becomes a separator and
// tokens of two characters or fewer are dropped. The first MaxKeywords
// distinct tokens are kept in order of first occurrence.
func ExtractKeywords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})

	keywords := make([]string, 0, min(len(tokens), MaxKeywords))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) <= minKeywordLength {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

// isWordRune accepts any Unicode letter or digit, so accented words stay
// whole ("café" is one token, not "caf").
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
