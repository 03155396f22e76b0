package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tally/pkg/contextkeys"
	"github.com/platinummonkey/tally/pkg/observability"
)

var (
	errUnauthenticated = errors.New("missing " + UserIDHeader + " header")
	errNotAdmin        = errors.New("admin role required")
)

// identityMiddleware copies the forwarded caller id into the request context
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := strings.TrimSpace(r.Header.Get(UserIDHeader)); userID != "" {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// loggerMiddleware makes the server logger the request's context logger
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), s.logger)))
	})
}

// requireUser returns the caller id, or writes a 401
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := contextkeys.GetUserID(r.Context())
	if userID == "" {
		s.writeError(w, r, errUnauthenticated)
		return "", false
	}
	return userID, true
}

// requireAdmin returns the caller id when the caller is an admin, or writes
// 401/403
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return "", false
	}
	if s.authorizer == nil {
		s.writeError(w, r, errNotAdmin)
		return "", false
	}
	admin, err := s.authorizer.IsAdmin(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	if !admin {
		s.writeError(w, r, errNotAdmin)
		return "", false
	}
	return userID, true
}
