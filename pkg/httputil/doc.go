// Package httputil provides the JSON response writers, request parsers and
// middleware shared by tally's HTTP handlers.
//
// Error replies always have the shape {"error": "..."}:
//
//	httputil.WriteErrorMessage(w, http.StatusBadRequest, "limit must be between 1 and 1000")
//
// Query parameters are parsed with explicit defaults and bounds:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 50, 1, 1000)
//	tags := httputil.ParseQueryList(r, "tags") // ?tags=a,b&tags=c
//
// Middleware composes with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//	)(router)
package httputil
