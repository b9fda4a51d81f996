// Package middleware provides HTTP middleware for the library API.
//
// Middleware stack includes:
//   - RequestID: X-Request-ID propagation (ULID when absent)
//   - Logger: one structured zap line per request
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//
// Rate Limiting:
//   - Per-IP tracking, idle limiters dropped after IdleTTL
//   - Token bucket algorithm
//   - Global rate limiting option
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.CORSFromConfig(cfg.CORS)))
//	router.Use(middleware.RateLimit(middleware.RateLimitFromConfig(cfg.RateLimit)))
package middleware
