package search

import (
	"regexp"
	"strings"
)

// DefaultMaxHighlights is the number of fragments returned per result
const DefaultMaxHighlights = 3

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Highlight returns up to maxHighlights sentence-like fragments of content that contain
// query, with every case-insensitive occurrence wrapped in <mark> tags.
func Highlight(query, content string, maxHighlights int) []string {
	highlights := []string{}
	if query == "" || content == "" || maxHighlights <= 0 {
		return highlights
	}

	matcher, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return highlights
	}

	for _, fragment := range sentenceBoundary.Split(content, -1) {
		if !matcher.MatchString(fragment) {
			continue
		}
		marked := matcher.ReplaceAllStringFunc(fragment, func(m string) string {
			return markOpen + m + markClose
		})
		highlights = append(highlights, strings.TrimSpace(marked))
		if len(highlights) >= maxHighlights {
			break
		}
	}

	return highlights
}
