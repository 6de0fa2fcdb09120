// Package ws streams terminal session output over WebSocket.
//
// A connection to /sessions/:id/stream attaches one listener to the
// session's event topic. Output retained while nobody was listening is sent
// first, then live output. After the exit frame the server closes the
// socket with a normal closure. Closing the session from elsewhere ends the
// stream the same way, without an exit frame.
//
// Frames are JSON text messages; byte payloads are base64.
//
// Message Types (Server → Client):
//   - data: {"type":"data","session_id","seq","data"}
//   - exit: {"type":"exit","session_id","seq","exit_code"}
//   - pong: reply to ping
//   - error: {"type":"error","message"}; the stream stays open
//
// Message Types (Client → Server):
//   - input: {"type":"input","data"}
//   - resize: {"type":"resize","cols","rows"}
//   - ping: keep-alive
//
// Browser pages must be served from a loopback origin.
//
// Example Usage:
//
//	handler := ws.NewHandler(hub, registry, metrics, logger)
//	router.GET("/sessions/:id/stream", handler.HandleConnection)
package ws
