package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/savedsearch"
	"github.com/platinummonkey/tally/pkg/search"
)

var errUnavailable = errors.New("operation not configured on this server")

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, savedsearch.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, savedsearch.ErrForbidden), errors.Is(err, errNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, savedsearch.ErrNotFound), errors.Is(err, search.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Internal errors are logged
// and replaced with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		httputil.WriteError(w, status, err)
		return
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	}).WithError(err).Error("request failed")
	httputil.WriteInternalError(w)
}

// badRequest wraps a parse error so it maps to 400
func badRequest(err error) error {
	return fmt.Errorf("%w: %v", search.ErrInvalidRequest, err)
}
