package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tally/pkg/async"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/search"
)

// indexStatus handles GET /api/v1/admin/search/status
func (s *Server) indexStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	status := map[string]interface{}{
		"rebuilding": s.rebuilder != nil && s.rebuilder.Rebuilding(),
	}
	if s.index != nil {
		n, err := s.index.Count(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status["entries"] = n
	}
	httputil.WriteSuccess(w, status)
}

// rebuildIndex handles POST /api/v1/admin/search/rebuild
// The rebuild is claimed before replying and runs in the background, so of
// two concurrent requests exactly one gets 202 and the other 409.
func (s *Server) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}
	if s.rebuilder == nil {
		s.writeError(w, r, errUnavailable)
		return
	}
	run, err := s.rebuilder.StartRebuild(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger := observability.FromContext(r.Context()).WithField("requested_by", userID)
	async.SafeGo(context.Background(), logger, s.rebuildTimeout, "search index rebuild", func(ctx context.Context) error {
		stats, err := run(ctx)
		if s.rebuildHook != nil {
			s.rebuildHook(stats, err)
		}
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"indexed":     stats.Indexed(),
			"failed":      stats.Failed,
			"duration_ms": stats.Duration.Milliseconds(),
		}).Info("search index rebuilt")
		return nil
	})

	httputil.WriteAccepted(w, map[string]string{"status": "started"})
}

// reindexEntry handles POST /api/v1/admin/search/reindex/{type}/{id}
// The record is reloaded from its entity store and queued for indexing, or
// queued for removal when it no longer exists.
func (s *Server) reindexEntry(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	if s.updater == nil || s.records == nil {
		s.writeError(w, r, errUnavailable)
		return
	}

	vars := mux.Vars(r)
	entityType, err := search.ParseEntityType(vars["type"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entityType == search.EntityTypeAll {
		s.writeError(w, r, badRequest(fmt.Errorf("a concrete entity type is required")))
		return
	}
	id := vars["id"]

	rec, err := s.records.GetRecord(r.Context(), entityType, id)
	switch {
	case errors.Is(err, search.ErrNotFound):
		s.updater.Deleted(entityType, id)
		httputil.WriteAccepted(w, map[string]string{"action": "remove"})
	case err != nil:
		s.writeError(w, r, err)
	default:
		s.updater.Upserted(rec)
		httputil.WriteAccepted(w, map[string]string{"action": "index"})
	}
}
