// Package middleware provides request rate limiting for the HTTP API.
//
// Identified callers (X-User-ID) are limited per user and anonymous callers
// per client address. A single process uses the in-memory token bucket:
//
//	mw := middleware.NewRateLimitMiddleware(
//		middleware.NewRateLimiter(middleware.PerUserRateLimitConfig()),
//		middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
//		logger, metrics)
//	router.Use(mw.Handler)
//
// Replicas sharing Redis use DistributedRateLimiter so a caller's budget is
// global:
//
//	users := middleware.NewDistributedRateLimiter(client, cfg, "tally:ratelimit:user")
//
// Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. Rejected requests get 429 with Retry-After. When Redis
// is unreachable requests are let through and the error is logged.
package middleware
