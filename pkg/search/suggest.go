package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Suggest returns up to limit distinct completions for prefix in scan order.
// A title matches when it starts with prefix ignoring case; a keyword
// matches when it starts with the lowercased prefix and is longer than it.
// Prefixes shorter than two characters yield no suggestions.
func (e *Engine) Suggest(ctx context.Context, prefix string, filter EntityType, limit int) ([]string, error) {
	ctx, span := engineTracer.Start(ctx, "Suggest",
		trace.WithAttributes(
			attribute.String("entity_type", string(filter)),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	suggestions := []string{}
	if utf8.RuneCountInString(prefix) < minSuggestPrefix {
		return suggestions, nil
	}
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if filter == "" {
		filter = EntityTypeAll
	}

	entries, err := e.store.Scan(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scan index")
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}
	e.metrics.ObserveSuggest()

	lowered := strings.ToLower(prefix)
	prefixLen := utf8.RuneCountInString(lowered)
	seen := make(map[string]struct{})
	add := func(s string) bool {
		if _, dup := seen[s]; dup {
			return false
		}
		seen[s] = struct{}{}
		suggestions = append(suggestions, s)
		return len(suggestions) >= limit
	}

scan:
	for _, entry := range entries {
		title := entry.Metadata.Title
		if title != "" && strings.HasPrefix(strings.ToLower(title), lowered) {
			if add(title) {
				break scan
			}
		}
		for _, kw := range entry.Keywords {
			if strings.HasPrefix(kw, lowered) && utf8.RuneCountInString(kw) > prefixLen {
				if add(kw) {
					break scan
				}
			}
		}
	}

	span.SetAttributes(attribute.Int("suggestion_count", len(suggestions)))
	span.SetStatus(codes.Ok, "suggestions retrieved")
	return suggestions, nil
}
