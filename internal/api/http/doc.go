// Package http provides the REST control API for terminal sessions.
//
// Handlers translate JSON requests into registry calls and map registry
// errors onto status codes:
//
//	ErrNotFound        404
//	SpawnError         422
//	ErrInvalidParams   400 (also unknown host profiles and bad bodies)
//	ErrRegistryClosed  503
//
// Endpoints:
//   - Health: / and /health
//   - Metrics: /metrics/json (Prometheus exposition lives on /metrics)
//   - Sessions: /sessions/local, /sessions/ssh, /sessions, /sessions/:id
//   - Session control: /sessions/:id/write, /resize, /exited
//
// Session output is not served here; see package ws for the stream.
//
// Example Usage:
//
//	handlers := http.NewHandlers(registry, profileStore, metrics, logger, version)
//	router.GET("/health", handlers.Health)
//	router.POST("/sessions/local", handlers.OpenLocal)
package http
