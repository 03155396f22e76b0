package search

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/observability"
)

var engineTracer = otel.Tracer("tally/search/engine")

const (
	// DefaultLimit is the page size when a request leaves Limit unset
	DefaultLimit = 50

	// DefaultSuggestLimit is the suggestion count when limit is unset
	DefaultSuggestLimit = 10

	minSuggestPrefix = 2
)

// HistoryRecorder appends an executed search to its owner's history
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, ownerID, query string, entityType EntityType, resultsCount int, searchTime int64) error
}

// EngineConfig holds the optional collaborators of an Engine
type EngineConfig struct {
	Lookups       Lookups
	History       HistoryRecorder
	MaxHighlights int

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now defaults to time.Now
	Now func() time.Time
}

// Engine answers ranked searches and autocomplete over an IndexStore.
// It holds no per-query state and is safe for concurrent use.
type Engine struct {
	store         IndexStore
	lookups       Lookups
	history       HistoryRecorder
	maxHighlights int
	logger        *observability.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// NewEngine creates a query engine over store
func NewEngine(store IndexStore, cfg EngineConfig) *Engine {
	if cfg.MaxHighlights <= 0 {
		cfg.MaxHighlights = DefaultMaxHighlights
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:         store,
		lookups:       cfg.Lookups,
		history:       cfg.History,
		maxHighlights: cfg.MaxHighlights,
		logger:        cfg.Logger.OrNop(),
		metrics:       cfg.Metrics,
		now:           cfg.Now,
	}
}

type scored struct {
	entry *IndexEntry
	score int
}

// Search scores every entry in scope against req.Query and returns one page
// of the filtered, ordered matches. An empty query yields an empty response.
// An empty or partially rebuilt index yields fewer results, never an error;
// only a failing store read is returned as one.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := engineTracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("entity_type", string(req.EntityType)),
			attribute.Int("limit", req.Limit),
			attribute.Int("offset", req.Offset),
		),
	)
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		span.SetStatus(codes.Ok, "empty query")
		return &Response{Results: []Result{}}, nil
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.EntityType == "" {
		req.EntityType = EntityTypeAll
	}

	start := e.now()

	entries, err := e.store.Scan(ctx, req.EntityType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scan index")
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}

	matches := make([]scored, 0, len(entries))
	for _, entry := range entries {
		if s := Score(query, entry); s > 0 {
			matches = append(matches, scored{entry: entry, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	matches = applyFilters(matches, req.Filters)
	if req.SortBy != nil {
		sortByField(matches, *req.SortBy)
	}

	total := len(matches)
	page := paginate(matches, req.Offset, req.Limit)

	results := make([]Result, 0, len(page))
	for _, m := range page {
		r := Result{
			EntityType:  m.entry.EntityType,
			EntityID:    m.entry.EntityID,
			Title:       m.entry.Metadata.Title,
			Description: m.entry.Metadata.Description,
			Score:       m.score,
			Highlights:  Highlight(query, m.entry.SearchableContent, e.maxHighlights),
			Metadata:    m.entry.Metadata,
		}
		e.enrich(ctx, &r)
		results = append(results, r)
	}

	elapsed := e.now().Sub(start)
	resp := &Response{
		Results:    results,
		TotalCount: total,
		SearchTime: elapsed.Milliseconds(),
	}

	e.metrics.ObserveSearch(string(req.EntityType), total, elapsed)
	span.SetAttributes(
		attribute.Int("scanned", len(entries)),
		attribute.Int("total_count", total),
		attribute.Int("result_count", len(results)),
	)

	if req.LogHistory && req.OwnerID != "" && e.history != nil {
		if err := e.history.RecordHistory(ctx, req.OwnerID, query, req.EntityType, total, resp.SearchTime); err != nil {
			e.logger.WithField("owner_id", req.OwnerID).WithError(err).Warn("failed to record search history")
			span.AddEvent("failed to record history")
		}
	}

	span.SetStatus(codes.Ok, "search completed")
	return resp, nil
}

// applyFilters keeps matches passing every present criterion, preserving order
func applyFilters(matches []scored, f *Filters) []scored {
	if f == nil {
		return matches
	}
	out := matches[:0]
	for _, m := range matches {
		if f.accepts(&m.entry.Metadata) {
			out = append(out, m)
		}
	}
	return out
}

func (f *Filters) accepts(md *Metadata) bool {
	if dr := f.DateRange; dr != nil {
		if dr.Start != nil && md.CreatedAt.Before(*dr.Start) {
			return false
		}
		if dr.End != nil && md.CreatedAt.After(*dr.End) {
			return false
		}
	}
	if len(f.Statuses) > 0 && (md.Status == "" || !slices.Contains(f.Statuses, md.Status)) {
		return false
	}
	if len(f.Priorities) > 0 && (md.Priority == "" || !slices.Contains(f.Priorities, md.Priority)) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(md.Tags, f.Tags) {
		return false
	}
	return true
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}

// SortFields lists the metadata fields accepted by SortBy.Field
var SortFields = []string{"title", "status", "priority", "createdAt", "updatedAt"}

var priorityRank = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"urgent":   4,
	"critical": 4,
}

// sortByField reorders matches by a metadata field. Unknown fields keep
// relevance order. Ties keep their relevance order in either direction.
func sortByField(matches []scored, by SortBy) {
	var cmp func(a, b *Metadata) int
	switch normalizeSortField(by.Field) {
	case "title":
		cmp = func(a, b *Metadata) int { return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) }
	case "status":
		cmp = func(a, b *Metadata) int { return strings.Compare(a.Status, b.Status) }
	case "priority":
		cmp = comparePriority
	case "createdAt":
		cmp = func(a, b *Metadata) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case "updatedAt":
		cmp = func(a, b *Metadata) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	default:
		return
	}

	desc := by.Direction == SortDesc
	sort.SliceStable(matches, func(i, j int) bool {
		c := cmp(&matches[i].entry.Metadata, &matches[j].entry.Metadata)
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// normalizeSortField accepts camelCase and snake_case spellings
func normalizeSortField(field string) string {
	switch strings.ToLower(strings.ReplaceAll(field, "_", "")) {
	case "title":
		return "title"
	case "status":
		return "status"
	case "priority":
		return "priority"
	case "createdat":
		return "createdAt"
	case "updatedat":
		return "updatedAt"
	default:
		return ""
	}
}

// comparePriority orders known levels by severity and anything else after
// them lexically.
func comparePriority(a, b *Metadata) int {
	ra, okA := priorityRank[strings.ToLower(a.Priority)]
	rb, okB := priorityRank[strings.ToLower(b.Priority)]
	switch {
	case okA && okB:
		return ra - rb
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a.Priority, b.Priority)
	}
}

func paginate(matches []scored, offset, limit int) []scored {
	if offset >= len(matches) {
		return nil
	}
	end := len(matches)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matches[offset:end]
}
