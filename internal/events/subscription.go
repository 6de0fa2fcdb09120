package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Subscription is one listener attached to a session topic.
type Subscription struct {
	id    string
	topic *topic
	ch    chan Event

	// backlog holds events retained before this listener attached
	mu      sync.Mutex
	backlog []Event

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(t *topic) *Subscription {
	return &Subscription{
		id:    uuid.NewString(),
		topic: t,
		ch:    make(chan Event, t.bufSize),
		done:  make(chan struct{}),
	}
}

// ID returns the listener id.
func (s *Subscription) ID() string {
	return s.id
}

// SessionID returns the session this listener is attached to.
func (s *Subscription) SessionID() string {
	return s.topic.sessionID
}

// Next returns the next event in publish order. After the session topic is
// closed it keeps returning queued events, then ErrSubscriptionClosed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case <-s.done:
		return Event{}, ErrSubscriptionClosed
	default:
	}

	s.mu.Lock()
	if len(s.backlog) > 0 {
		ev := s.backlog[0]
		s.backlog[0] = Event{}
		s.backlog = s.backlog[1:]
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return Event{}, ErrSubscriptionClosed
		}
		return ev, nil
	case <-s.done:
		return Event{}, ErrSubscriptionClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close detaches the listener. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.topic.unsubscribe(s)
	})
}

// drain takes every event this listener has not consumed yet, oldest first.
// The caller holds the topic lock, so no publisher sends concurrently.
func (s *Subscription) drain() []Event {
	s.mu.Lock()
	pending := s.backlog
	s.backlog = nil
	s.mu.Unlock()

	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				return pending
			}
			pending = append(pending, ev)
		default:
			return pending
		}
	}
}
