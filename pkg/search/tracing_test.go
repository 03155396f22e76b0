package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanNamed(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "span not recorded", "no %q span in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

func attr(s tracetest.SpanStub, key string) attribute.Value {
	for _, kv := range s.Attributes {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

// The global provider only delegates once, so every span assertion for the
// package lives here.
func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := context.Background()

	t.Run("search", func(t *testing.T) {
		exporter.Reset()
		store := NewMemoryStore()
		indexAll(t, store, Task{ID: "t-1", Title: "Quarterly report"}, Task{ID: "t-2", Title: "Budget"})

		_, err := NewEngine(store, EngineConfig{}).Search(ctx, Request{Query: "quarterly", EntityType: EntityTypeTask, Limit: 5})
		require.NoError(t, err)

		span := spanNamed(t, exporter.GetSpans(), "Search")
		assert.Equal(t, codes.Ok, span.Status.Code)
		assert.Equal(t, "task", attr(span, "entity_type").AsString())
		assert.Equal(t, int64(2), attr(span, "scanned").AsInt64())
		assert.Equal(t, int64(1), attr(span, "total_count").AsInt64())
	})

	t.Run("scan failure", func(t *testing.T) {
		exporter.Reset()
		_, err := NewEngine(failingStore{NewMemoryStore()}, EngineConfig{}).Search(ctx, Request{Query: "x"})
		require.Error(t, err)

		span := spanNamed(t, exporter.GetSpans(), "Search")
		assert.Equal(t, codes.Error, span.Status.Code)
		require.NotEmpty(t, span.Events, "the error is recorded as an event")
	})

	t.Run("rebuild", func(t *testing.T) {
		exporter.Reset()
		stats, err := NewIndexer(NewMemoryStore(), seededSources(), IndexerConfig{Now: fixedClock}).RebuildAll(ctx)
		require.NoError(t, err)

		spans := exporter.GetSpans()
		rebuild := spanNamed(t, spans, "RebuildAll")
		assert.Equal(t, int64(stats.Indexed()), attr(rebuild, "indexed").AsInt64())

		children := 0
		for _, s := range spans {
			if s.Name == "Index" && s.Parent.SpanID() == rebuild.SpanContext.SpanID() {
				children++
			}
		}
		assert.Equal(t, stats.Indexed(), children)
	})
}
