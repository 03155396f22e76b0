package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/savedsearch"
	"github.com/platinummonkey/tally/pkg/search"
)

// UserIDHeader carries the authenticated caller's id
const UserIDHeader = "X-User-ID"

const (
	defaultRebuildTimeout = 30 * time.Minute
	maxRequestBody        = 1 << 20
)

// Searcher runs queries. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Suggest(ctx context.Context, prefix string, filter search.EntityType, limit int) ([]string, error)
}

// SavedSearches stores saved searches and history. *savedsearch.Manager
// satisfies it.
type SavedSearches interface {
	Save(ctx context.Context, def savedsearch.SavedSearch, ownerID string) (*savedsearch.SavedSearch, error)
	Get(ctx context.Context, id, callerID string) (*savedsearch.SavedSearch, error)
	Update(ctx context.Context, id, ownerID string, def savedsearch.SavedSearch) (*savedsearch.SavedSearch, error)
	List(ctx context.Context, ownerID string, entityType search.EntityType) ([]savedsearch.SavedSearch, error)
	RecordUsage(ctx context.Context, id string) error
	Delete(ctx context.Context, id, ownerID string) error
	GetHistory(ctx context.Context, ownerID string, limit int) ([]savedsearch.HistoryEntry, error)
	ClearHistory(ctx context.Context, ownerID string) (int64, error)
}

// Rebuilder runs full index rebuilds. *search.Indexer satisfies it.
// StartRebuild claims the rebuild or returns search.ErrRebuildInProgress;
// the returned function performs it.
type Rebuilder interface {
	StartRebuild(ctx context.Context) (search.RebuildFunc, error)
	Rebuilding() bool
}

// IndexUpdater queues single-entry index maintenance. *search.Dispatcher
// satisfies it.
type IndexUpdater interface {
	Upserted(rec search.Record)
	Deleted(entityType search.EntityType, entityID string)
}

// RecordLoader reads one entity record. *records.Store satisfies it.
type RecordLoader interface {
	GetRecord(ctx context.Context, entityType search.EntityType, id string) (search.Record, error)
}

// IndexCounter reports the number of index entries
type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}

// Authorizer decides who may run admin operations
type Authorizer interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Config wires a Server. Searcher and SavedSearches are required; the admin
// routes answer 503 when their collaborators are missing.
type Config struct {
	Searcher      Searcher
	SavedSearches SavedSearches

	Rebuilder    Rebuilder
	Updater      IndexUpdater
	Records      RecordLoader
	Index        IndexCounter
	Authorizer   Authorizer
	RebuildHook  func(stats *search.RebuildStats, err error)
	RebuildLimit time.Duration

	// RateLimit runs after the caller is identified; nil disables limiting
	RateLimit mux.MiddlewareFunc

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP API
type Server struct {
	router *mux.Router

	searcher       Searcher
	saved          SavedSearches
	rebuilder      Rebuilder
	updater        IndexUpdater
	records        RecordLoader
	index          IndexCounter
	authorizer     Authorizer
	rebuildHook    func(stats *search.RebuildStats, err error)
	rebuildTimeout time.Duration
	rateLimit      mux.MiddlewareFunc

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates a server and registers its routes
func NewServer(cfg Config) *Server {
	if cfg.RebuildLimit <= 0 {
		cfg.RebuildLimit = defaultRebuildTimeout
	}
	s := &Server{
		router:         mux.NewRouter(),
		searcher:       cfg.Searcher,
		saved:          cfg.SavedSearches,
		rebuilder:      cfg.Rebuilder,
		updater:        cfg.Updater,
		records:        cfg.Records,
		index:          cfg.Index,
		authorizer:     cfg.Authorizer,
		rebuildHook:    cfg.RebuildHook,
		rebuildTimeout: cfg.RebuildLimit,
		rateLimit:      cfg.RateLimit,
		logger:         cfg.Logger.OrNop(),
		metrics:        cfg.Metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.router.Use(s.loggerMiddleware)
	s.router.Use(identityMiddleware)
	if s.rateLimit != nil {
		s.router.Use(s.rateLimit)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Search
	v1.HandleFunc("/search", s.search).Methods("GET")
	v1.HandleFunc("/search/suggest", s.suggest).Methods("GET")
	v1.HandleFunc("/search/history", s.getHistory).Methods("GET")
	v1.HandleFunc("/search/history", s.clearHistory).Methods("DELETE")

	// Saved searches
	v1.HandleFunc("/saved-searches", s.listSavedSearches).Methods("GET")
	v1.HandleFunc("/saved-searches", s.createSavedSearch).Methods("POST")
	v1.HandleFunc("/saved-searches/{id}", s.getSavedSearch).Methods("GET")
	v1.HandleFunc("/saved-searches/{id}", s.updateSavedSearch).Methods("PUT")
	v1.HandleFunc("/saved-searches/{id}", s.deleteSavedSearch).Methods("DELETE")
	v1.HandleFunc("/saved-searches/{id}/run", s.runSavedSearch).Methods("POST")

	// Admin
	v1.HandleFunc("/admin/search/status", s.indexStatus).Methods("GET")
	v1.HandleFunc("/admin/search/rebuild", s.rebuildIndex).Methods("POST")
	v1.HandleFunc("/admin/search/reindex/{type}/{id}", s.reindexEntry).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped with recovery, request ids, request
// logging, body limits and tracing
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxRequestBody),
		httputil.ContentTypeMiddleware,
	)
	return otelhttp.NewHandler(chain(s.router), "tally-api")
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
