package events

import (
	"errors"
	"time"
)

// Type tags an event on the bus.
type Type string

const (
	// TypeData carries an ordered chunk of PTY output.
	TypeData Type = "data"

	// TypeExit is published once per session after its last data event.
	TypeExit Type = "exit"
)

// Event is one notification for a single session.
type Event struct {
	SessionID string
	Type      Type

	// Seq is assigned by the topic and increases by one per published event,
	// starting at 1. Listeners can use it to detect gaps or duplicates.
	Seq uint64

	Data     []byte
	ExitCode int
	Time     time.Time
}

// Sentinel errors for the events package.
var (
	// ErrUnknownTopic is returned when no topic was opened for a session.
	ErrUnknownTopic = errors.New("events: unknown session topic")

	// ErrTopicClosed is returned once the session topic has been released.
	ErrTopicClosed = errors.New("events: session topic closed")

	// ErrSubscriptionClosed is returned by Next after the subscription ends.
	ErrSubscriptionClosed = errors.New("events: subscription closed")
)
