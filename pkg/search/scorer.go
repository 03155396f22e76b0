package search

import (
	"strings"
	"unicode/utf8"
)

// Relevance bonuses. The total is additive; a score of 0 excludes the entry.
const (
	PhraseMatchScore    = 100
	KeywordMatchScore   = 20
	SubstringMatchScore = 10
	TitleMatchScore     = 50
)

// Score computes the relevance of entry for query.
//
// The title bonus checks the first line of the content. Content is built
// single-line, so this usually repeats the phrase check; the bonuses are
// kept additive because ranking depends on the exact total.
func Score(query string, entry *IndexEntry) int {
	if entry == nil {
		return 0
	}

	q := strings.ToLower(query)
	content := strings.ToLower(entry.SearchableContent)
	score := 0

	if strings.Contains(content, q) {
		score += PhraseMatchScore
	}

	for _, word := range strings.Fields(q) {
		if utf8.RuneCountInString(word) <= minKeywordLength {
			continue
		}
		if containsString(entry.Keywords, word) {
			score += KeywordMatchScore
		}
		if strings.Contains(content, word) {
			score += SubstringMatchScore
		}
	}

	firstLine, _, _ := strings.Cut(entry.SearchableContent, "\n")
	if strings.Contains(strings.ToLower(firstLine), q) {
		score += TitleMatchScore
	}

	return score
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
