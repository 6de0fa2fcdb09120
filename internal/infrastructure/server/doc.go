// Package server wires termhubd together.
//
// Components:
//   - events.Hub carrying session output
//   - terminal.Registry owning the PTY sessions
//   - REST handlers and the WebSocket stream
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting)
//   - Prometheus exposition on /metrics
//
// Server Lifecycle:
//  1. Validate configuration
//  2. Initialize logger, metrics and tracer
//  3. Load host profiles when PROFILES_PATH is set
//  4. Create the bus and the session registry
//  5. Setup HTTP routes and middleware
//  6. Serve until the context is cancelled
//  7. Close every session, then stop HTTP, the bus and the tracer
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, version)
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server
