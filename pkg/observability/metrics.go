package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Query metrics
	SearchesTotal        *prometheus.CounterVec
	SearchDuration       *prometheus.HistogramVec
	SearchResults        *prometheus.HistogramVec
	SuggestionsTotal     prometheus.Counter
	EnrichmentCacheTotal *prometheus.CounterVec

	// Index metrics
	IndexOperationsTotal *prometheus.CounterVec
	IndexEntries         prometheus.Gauge
	DispatchDroppedTotal prometheus.Counter
	RebuildsTotal        *prometheus.CounterVec
	RebuildDuration      prometheus.Histogram
	RebuildEntries       prometheus.Gauge

	// Saved search metrics
	SavedSearchOpsTotal *prometheus.CounterVec
	HistoryWritesTotal  *prometheus.CounterVec

	// Rate limiting
	RateLimitDecisionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_searches_total",
				Help: "Total number of executed searches",
			},
			[]string{"entity_type"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_search_duration_seconds",
				Help:    "Search execution time in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"entity_type"},
		),
		SearchResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_search_results",
				Help:    "Number of matches per search before pagination",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"entity_type"},
		),
		SuggestionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_suggestions_total",
				Help: "Total number of suggestion requests",
			},
		),
		EnrichmentCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_enrichment_cache_total",
				Help: "Enrichment lookups by cache outcome",
			},
			[]string{"kind", "outcome"},
		),

		IndexOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_index_operations_total",
				Help: "Index mutations by operation and outcome",
			},
			[]string{"operation", "entity_type", "status"},
		),
		IndexEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_index_entries",
				Help: "Number of entries in the search index",
			},
		),
		DispatchDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tally_index_dispatch_dropped_total",
				Help: "Change notifications dropped because the worker pool was saturated",
			},
		),
		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_index_rebuilds_total",
				Help: "Full index rebuilds by outcome",
			},
			[]string{"status"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tally_index_rebuild_duration_seconds",
				Help:    "Full index rebuild duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		RebuildEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_index_rebuild_last_entries",
				Help: "Entries written by the most recent rebuild",
			},
		),

		SavedSearchOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_saved_search_operations_total",
				Help: "Saved search operations by kind and outcome",
			},
			[]string{"operation", "status"},
		),
		HistoryWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_search_history_writes_total",
				Help: "Search history appends by outcome",
			},
			[]string{"status"},
		),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_rate_limit_decisions_total",
				Help: "Rate limit decisions by caller scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SearchesTotal,
		m.SearchDuration,
		m.SearchResults,
		m.SuggestionsTotal,
		m.EnrichmentCacheTotal,
		m.IndexOperationsTotal,
		m.IndexEntries,
		m.DispatchDroppedTotal,
		m.RebuildsTotal,
		m.RebuildDuration,
		m.RebuildEntries,
		m.SavedSearchOpsTotal,
		m.HistoryWritesTotal,
		m.RateLimitDecisionsTotal,
	)

	return m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveSearch records one executed search
func (m *Metrics) ObserveSearch(entityType string, matches int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(entityType).Inc()
	m.SearchDuration.WithLabelValues(entityType).Observe(elapsed.Seconds())
	m.SearchResults.WithLabelValues(entityType).Observe(float64(matches))
}

// ObserveSuggest records one suggestion request
func (m *Metrics) ObserveSuggest() {
	if m == nil {
		return
	}
	m.SuggestionsTotal.Inc()
}

// ObserveEnrichmentLookup records a cache hit or miss for a lookup kind
func (m *Metrics) ObserveEnrichmentLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.EnrichmentCacheTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveIndexOperation records an upsert or remove against the index
func (m *Metrics) ObserveIndexOperation(operation, entityType string, err error) {
	if m == nil {
		return
	}
	m.IndexOperationsTotal.WithLabelValues(operation, entityType, statusLabel(err)).Inc()
}

// SetIndexEntries updates the index size gauge
func (m *Metrics) SetIndexEntries(n int) {
	if m == nil {
		return
	}
	m.IndexEntries.Set(float64(n))
}

// ObserveDispatchDropped counts a change notification that could not be queued
func (m *Metrics) ObserveDispatchDropped() {
	if m == nil {
		return
	}
	m.DispatchDroppedTotal.Inc()
}

// ObserveRebuild records a completed or failed rebuild
func (m *Metrics) ObserveRebuild(entries int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RebuildsTotal.WithLabelValues(statusLabel(err)).Inc()
	m.RebuildDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.RebuildEntries.Set(float64(entries))
	}
}

// ObserveSavedSearchOp records a saved search create, update, run or delete
func (m *Metrics) ObserveSavedSearchOp(operation string, err error) {
	if m == nil {
		return
	}
	m.SavedSearchOpsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// ObserveRateLimit records one decision; outcome is allowed, limited or error
func (m *Metrics) ObserveRateLimit(scope, outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisionsTotal.WithLabelValues(scope, outcome).Inc()
}

// ObserveHistoryWrite records a search history append
func (m *Metrics) ObserveHistoryWrite(err error) {
	if m == nil {
		return
	}
	m.HistoryWritesTotal.WithLabelValues(statusLabel(err)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labeled by their mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the Prometheus metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}
