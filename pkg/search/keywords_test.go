package search

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "punctuation and case",
			text: "Hello, World! Hello again; a an the_end 42 abc",
			want: []string{"hello", "world", "again", "the_end", "abc"},
		},
		{
			name: "email and phone",
			text: "jane.roe@example.com +1 (555) 010-2030",
			want: []string{"jane", "roe", "example", "com", "555", "010", "2030"},
		},
		{
			name: "unicode letters",
			text: "Café naïve über",
			want: []string{"café", "naïve", "über"},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "only short tokens",
			text: "a b cd e-f",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.text))
		})
	}
}

func TestExtractKeywords_Cap(t *testing.T) {
	words := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		words = append(words, fmt.Sprintf("word%02d", i))
	}

	got := ExtractKeywords(strings.Join(words, " "))
	assert.Len(t, got, MaxKeywords)
	assert.Equal(t, "word00", got[0])
	assert.Equal(t, "word49", got[MaxKeywords-1])
}

func TestExtractKeywords_Deterministic(t *testing.T) {
	text := "Quarterly Review: ACME renewal, pricing & Renewal terms"
	first := ExtractKeywords(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ExtractKeywords(text))
	}
	for _, kw := range first {
		assert.Equal(t, strings.ToLower(kw), kw)
		assert.Greater(t, len([]rune(kw)), 2)
	}
}
