package api

import (
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/search"
)

const (
	maxSearchLimit  = 1000
	maxSuggestLimit = 50
)

// search handles GET /api/v1/search
// Query parameters:
//   - q: free text query
//   - type: contact, project, task or all (default)
//   - status, priority, tags: comma separated, any-of within each
//   - from, to: RFC3339 bounds on the record's creation time
//   - sort, order: metadata field and asc (default) or desc
//   - limit: max results (default: 50, max: 1000)
//   - offset: pagination offset (default: 0)
//   - log: record the search in the caller's history (default: true)
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), *req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

func parseSearchRequest(r *http.Request) (*search.Request, error) {
	entityType, err := search.ParseEntityType(r.URL.Query().Get("type"))
	if err != nil {
		return nil, err
	}

	limit, offset, err := parsePage(r, search.DefaultLimit)
	if err != nil {
		return nil, err
	}

	filters, err := parseFilters(r)
	if err != nil {
		return nil, err
	}

	sortBy, err := parseSort(r)
	if err != nil {
		return nil, err
	}

	logHistory, err := httputil.ParseQueryBool(r, "log", true)
	if err != nil {
		return nil, badRequest(err)
	}
	ownerID := contextkeys.GetUserID(r.Context())

	return &search.Request{
		Query:      httputil.ParseQueryString(r, "q", ""),
		EntityType: entityType,
		Filters:    filters,
		SortBy:     sortBy,
		Limit:      limit,
		Offset:     offset,
		OwnerID:    ownerID,
		LogHistory: logHistory && ownerID != "",
	}, nil
}

func parsePage(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit, err = httputil.ParseQueryInt(r, "limit", defaultLimit, 1, maxSearchLimit)
	if err != nil {
		return 0, 0, badRequest(err)
	}
	offset, err = httputil.ParseQueryInt(r, "offset", 0, 0, math.MaxInt32)
	if err != nil {
		return 0, 0, badRequest(err)
	}
	return limit, offset, nil
}

// parseFilters returns nil when no filter parameter is present
func parseFilters(r *http.Request) (*search.Filters, error) {
	from, err := httputil.ParseQueryTime(r, "from")
	if err != nil {
		return nil, badRequest(err)
	}
	to, err := httputil.ParseQueryTime(r, "to")
	if err != nil {
		return nil, badRequest(err)
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, badRequest(fmt.Errorf("to must not be before from"))
	}

	f := &search.Filters{
		Statuses:   httputil.ParseQueryList(r, "status"),
		Priorities: httputil.ParseQueryList(r, "priority"),
		Tags:       httputil.ParseQueryList(r, "tags"),
	}
	if from != nil || to != nil {
		f.DateRange = &search.DateRange{Start: from, End: to}
	}
	if f.DateRange == nil && f.Statuses == nil && f.Priorities == nil && f.Tags == nil {
		return nil, nil
	}
	return f, nil
}

func parseSort(r *http.Request) (*search.SortBy, error) {
	field := httputil.ParseQueryString(r, "sort", "")
	if field == "" {
		return nil, nil
	}
	switch order := search.SortDirection(strings.ToLower(httputil.ParseQueryString(r, "order", string(search.SortAsc)))); order {
	case search.SortAsc, search.SortDesc:
		return &search.SortBy{Field: field, Direction: order}, nil
	default:
		return nil, badRequest(fmt.Errorf("order must be asc or desc, got %q", order))
	}
}

// suggest handles GET /api/v1/search/suggest
// Query parameters:
//   - q: title prefix, at least two characters
//   - type: contact, project, task or all (default)
//   - limit: max suggestions (default: 10, max: 50)
func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	prefix := httputil.ParseQueryString(r, "q", "")

	entityType, err := search.ParseEntityType(r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", search.DefaultSuggestLimit, 1, maxSuggestLimit)
	if err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	suggestions, err := s.searcher.Suggest(r.Context(), prefix, entityType, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"prefix":      prefix,
		"suggestions": suggestions,
	})
}
