// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs go to stderr. Components receive a *zap.Logger named after them;
// session-scoped lines carry a session_id field.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("addr", "127.0.0.1:7681"))
//	logger.Component("terminal").Warn("PTY read failed", zap.String("session_id", id))
package logging
