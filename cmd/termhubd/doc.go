// Command termhubd is the terminal session daemon.
//
// It owns local shell and ssh client sessions running behind pseudo-terminals
// and exposes them to UIs on this machine:
//
//	UI (browser/desktop) → REST  /sessions/...        → Session Registry
//	                     ← WS    /sessions/:id/stream ← Event Bus
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Serve on 127.0.0.1:7681
//	termhubd serve
//
//	# Development mode (colored logs, debug level)
//	termhubd serve --dev
//
//	# Check a host profile file
//	termhubd profiles --file hosts.yaml
//
// Signals:
//   - SIGINT, SIGTERM: close every session, then exit
package main
