package api

import (
	"net/http"

	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/savedsearch"
	"github.com/platinummonkey/tally/pkg/search"
)

const maxHistoryPage = 100

// savedSearchRequest is the writable part of a saved search
type savedSearchRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	EntityType  search.EntityType `json:"entityType"`
	Query       string            `json:"query"`
	Filters     search.Filters    `json:"filters"`
	SortBy      *search.SortBy    `json:"sortBy,omitempty"`
	IsPublic    bool              `json:"isPublic"`
	IsDefault   bool              `json:"isDefault"`
}

func (req *savedSearchRequest) definition() savedsearch.SavedSearch {
	return savedsearch.SavedSearch{
		Name:        req.Name,
		Description: req.Description,
		EntityType:  req.EntityType,
		Query:       req.Query,
		Filters:     req.Filters,
		SortBy:      req.SortBy,
		IsPublic:    req.IsPublic,
		IsDefault:   req.IsDefault,
	}
}

// listSavedSearches handles GET /api/v1/saved-searches
// Anonymous callers only see public searches.
func (s *Server) listSavedSearches(w http.ResponseWriter, r *http.Request) {
	entityType, err := search.ParseEntityType(r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	searches, err := s.saved.List(r.Context(), contextkeys.GetUserID(r.Context()), entityType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"savedSearches": searches,
		"count":         len(searches),
	})
}

// createSavedSearch handles POST /api/v1/saved-searches
func (s *Server) createSavedSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req savedSearchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	saved, err := s.saved.Save(r.Context(), req.definition(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, saved)
}

// getSavedSearch handles GET /api/v1/saved-searches/{id}
func (s *Server) getSavedSearch(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	saved, err := s.saved.Get(r.Context(), id, contextkeys.GetUserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, saved)
}

// updateSavedSearch handles PUT /api/v1/saved-searches/{id}
func (s *Server) updateSavedSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	var req savedSearchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	saved, err := s.saved.Update(r.Context(), id, userID, req.definition())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, saved)
}

// deleteSavedSearch handles DELETE /api/v1/saved-searches/{id}
func (s *Server) deleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	if err := s.saved.Delete(r.Context(), id, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// runSavedSearch handles POST /api/v1/saved-searches/{id}/run
// Query parameters:
//   - limit: max results (default: 50, max: 1000)
//   - offset: pagination offset (default: 0)
//
// The usage count is bumped before the search runs; identified callers get
// a history entry.
func (s *Server) runSavedSearch(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "id")
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	limit, offset, err := parsePage(r, search.DefaultLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	saved, err := s.saved.Get(r.Context(), id, userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.saved.RecordUsage(r.Context(), saved.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), saved.Request(userID, limit, offset))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// getHistory handles GET /api/v1/search/history
// Query parameters:
//   - limit: max entries (default: 20, max: 100)
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", savedsearch.DefaultHistoryPage, 1, maxHistoryPage)
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	entries, err := s.saved.GetHistory(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"history": entries,
		"count":   len(entries),
	})
}

// clearHistory handles DELETE /api/v1/search/history
func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	deleted, err := s.saved.ClearHistory(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"deleted": deleted})
}
