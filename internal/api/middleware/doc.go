// Package middleware provides the gin middleware in front of the control API.
//
//   - CORS: admits the launcher front-end (loopback origins by default)
//   - RateLimit: per-IP token buckets with idle eviction
//   - GlobalRateLimit: one bucket for every caller
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
