package ws

import (
	"github.com/GriffinCanCode/termhub/internal/events"
)

// Frame types
const (
	// Server to client
	TypeData  = "data"
	TypeExit  = "exit"
	TypePong  = "pong"
	TypeError = "error"

	// Client to server
	TypeInput  = "input"
	TypeResize = "resize"
	TypePing   = "ping"
)

// ServerFrame is sent to the client. Data is base64 in JSON.
type ServerFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Data      []byte `json:"data,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientFrame is received from the client. Data is base64 in JSON.
type ClientFrame struct {
	Type string `json:"type"`
	Data []byte `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

func eventFrame(ev events.Event) ServerFrame {
	if ev.Type == events.TypeExit {
		code := ev.ExitCode
		return ServerFrame{
			Type:      TypeExit,
			SessionID: ev.SessionID,
			Seq:       ev.Seq,
			ExitCode:  &code,
		}
	}
	return ServerFrame{
		Type:      TypeData,
		SessionID: ev.SessionID,
		Seq:       ev.Seq,
		Data:      ev.Data,
	}
}

func errorFrame(msg string) ServerFrame {
	return ServerFrame{Type: TypeError, Message: msg}
}
