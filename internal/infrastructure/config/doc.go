// Package config provides 12-factor configuration management for termhubd.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP listen address (loopback by default)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Terminal: Default PTY size, output retention and read buffer bounds
//   - Profiles: Optional SSH host profile file
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - TERMINAL_DEFAULT_COLS, TERMINAL_DEFAULT_ROWS
//   - TERMINAL_RETAIN_BYTES, TERMINAL_SUBSCRIBER_BUFFER, TERMINAL_READ_BUFFER,
//     TERMINAL_INPUT_QUEUE_BYTES
//   - PROFILES_PATH
package config
