// Package contextkeys defines every context key used across tally.
//
// Keys live in one place so request-scoped values (caller identity, request
// id, logger) are discoverable and cannot collide between packages.
//
//	ctx = contextkeys.WithUserID(ctx, "user-1")
//	userID := contextkeys.GetUserID(ctx)
package contextkeys

import "context"

// Key types context values so they cannot collide with other packages
type Key string

const (
	// RequestIDKey holds the request id string, set by
	// httputil.RequestIDMiddleware and logged with every request.
	RequestIDKey Key = "request_id"

	// UserIDKey holds the caller id forwarded in X-User-ID, set by the api
	// identity middleware. Saved search ownership, history and per user
	// rate limits read it.
	UserIDKey Key = "user_id"

	// LoggerKey holds the *observability.Logger handlers log through.
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
