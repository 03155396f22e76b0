// Package api exposes the search engine, saved searches and search history
// over HTTP.
//
// Authentication happens upstream. The gateway forwards the caller's id in
// the X-User-ID header; requests without it are anonymous and may only run
// searches and read public saved searches. When Config.RateLimit is set it
// runs after the caller is identified, so limits apply per user.
//
// Routes:
//
//	GET    /api/v1/search                           ranked search
//	GET    /api/v1/search/suggest                   title autocomplete
//	GET    /api/v1/search/history                   caller's recent searches
//	DELETE /api/v1/search/history                   clear caller's history
//	GET    /api/v1/saved-searches                   own and public saved searches
//	POST   /api/v1/saved-searches                   create
//	GET    /api/v1/saved-searches/{id}              read
//	PUT    /api/v1/saved-searches/{id}              replace (owner only)
//	DELETE /api/v1/saved-searches/{id}              delete (owner only)
//	POST   /api/v1/saved-searches/{id}/run          execute and count usage
//	GET    /api/v1/admin/search/status              index size and rebuild state
//	POST   /api/v1/admin/search/rebuild             background full rebuild
//	POST   /api/v1/admin/search/reindex/{type}/{id} refresh one entry
package api
