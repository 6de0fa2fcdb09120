// Package middleware provides HTTP middleware for the termhubd control API.
//
// Middleware stack includes:
//   - CORS: loopback origins plus an explicit allow list
//   - RateLimit: Per-IP token bucket rate limiting with idle cleanup
//   - GlobalRateLimit: one bucket shared by every client
//
// IsLoopbackOrigin is shared with the WebSocket upgrader so browsers on other
// hosts cannot drive local terminals.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
