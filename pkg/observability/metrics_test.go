package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch("all", 3, time.Millisecond)
		m.ObserveSuggest()
		m.ObserveEnrichmentLookup("project", true)
		m.ObserveIndexOperation("upsert", "task", nil)
		m.SetIndexEntries(10)
		m.ObserveDispatchDropped()
		m.ObserveRebuild(5, time.Second, nil)
		m.ObserveSavedSearchOp("create", nil)
		m.ObserveHistoryWrite(nil)
		m.ObserveRateLimit("user", "allowed")
	})
}

func TestMetrics_Record(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveSearch("task", 4, 2*time.Millisecond)
	m.ObserveSearch("task", 0, time.Millisecond)
	m.ObserveIndexOperation("upsert", "contact", nil)
	m.ObserveIndexOperation("upsert", "contact", errors.New("db down"))
	m.ObserveRebuild(12, time.Second, nil)
	m.ObserveRebuild(0, time.Second, errors.New("source failed"))
	m.SetIndexEntries(12)
	m.ObserveRateLimit("anonymous", "limited")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SearchesTotal.WithLabelValues("task")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexOperationsTotal.WithLabelValues("upsert", "contact", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexOperationsTotal.WithLabelValues("upsert", "contact", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.RebuildEntries))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.IndexEntries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitDecisionsTotal.WithLabelValues("anonymous", "limited")))
}

func TestHTTPMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/v1/saved-searches/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/saved-searches/abc", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/saved-searches/{id}", "404"))
	assert.Equal(t, float64(1), count)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveSuggest()

	httpMux := http.NewServeMux()
	RegisterMetricsEndpoint(httpMux, registry)

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tally_suggestions_total 1"))
}
