package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config bounds the memory a topic may hold for slow or absent listeners.
type Config struct {
	// RetainBytes caps data retained while a session has no listener.
	RetainBytes int

	// SubscriberBuffer is the per-listener queue length, in events.
	SubscriberBuffer int
}

// DefaultConfig returns the bounds used by the daemon.
func DefaultConfig() Config {
	return Config{
		RetainBytes:      1 << 20,
		SubscriberBuffer: 256,
	}
}

// Hub routes session events to listeners.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	topics map[string]*topic
	closed bool
}

// NewHub creates an empty hub.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	def := DefaultConfig()
	if cfg.RetainBytes <= 0 {
		cfg.RetainBytes = def.RetainBytes
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		cfg:    cfg,
		logger: logger,
		topics: make(map[string]*topic),
	}
}

// Open creates the topic for a session. Opening an existing topic is a no-op.
func (h *Hub) Open(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrTopicClosed
	}
	if _, ok := h.topics[sessionID]; !ok {
		h.topics[sessionID] = newTopic(sessionID, h.cfg)
	}
	return nil
}

// Publish appends ev to its session topic. It blocks while the topic's bounds
// are full and returns early only when ctx ends or the topic is closed.
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	t := h.topic(ev.SessionID)
	if t == nil {
		return ErrUnknownTopic
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return t.publish(ctx, ev)
}

// Subscribe attaches a listener to a session. Any retained backlog is handed to
// the new subscription before live events.
func (h *Hub) Subscribe(sessionID string) (*Subscription, error) {
	t := h.topic(sessionID)
	if t == nil {
		return nil, ErrUnknownTopic
	}

	sub, err := t.subscribe()
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Listener attached",
		zap.String("session_id", sessionID),
		zap.String("subscription_id", sub.ID()),
		zap.Int("backlog", len(sub.backlog)),
	)
	return sub, nil
}

// Close releases a session topic. Blocked publishers return ErrTopicClosed and
// listeners drain what was already queued before Next reports the end.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	t := h.topics[sessionID]
	delete(h.topics, sessionID)
	h.mu.Unlock()

	if t != nil {
		t.close()
	}
}

// Shutdown closes every topic and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	topics := h.topics
	h.topics = make(map[string]*topic)
	h.mu.Unlock()

	for _, t := range topics {
		t.close()
	}
}

// Retained reports the events and data bytes waiting for a listener.
func (h *Hub) Retained(sessionID string) (events, bytes int) {
	t := h.topic(sessionID)
	if t == nil {
		return 0, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.retained), t.retainedBytes
}

// Len returns the number of open topics.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

func (h *Hub) topic(sessionID string) *topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topics[sessionID]
}

// topic is the ordered stream of one session.
type topic struct {
	sessionID string
	limit     int
	bufSize   int

	mu            sync.Mutex
	seq           uint64
	retained      []Event
	retainedBytes int
	subs          map[*Subscription]struct{}
	changed       chan struct{} // closed and replaced whenever listeners or retention change
	closed        bool

	done      chan struct{}
	closeOnce sync.Once
}

func newTopic(sessionID string, cfg Config) *topic {
	return &topic{
		sessionID: sessionID,
		limit:     cfg.RetainBytes,
		bufSize:   cfg.SubscriberBuffer,
		subs:      make(map[*Subscription]struct{}),
		changed:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (t *topic) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// canRetainLocked reports whether ev fits the retention bound. Exit events carry
// no data and always fit; a single oversized chunk is accepted into an empty backlog.
func (t *topic) canRetainLocked(ev Event) bool {
	return len(ev.Data) == 0 || t.retainedBytes == 0 || t.retainedBytes+len(ev.Data) <= t.limit
}

func (t *topic) retainLocked(ev Event) {
	t.retained = append(t.retained, ev)
	t.retainedBytes += len(ev.Data)
}

func (t *topic) publish(ctx context.Context, ev Event) error {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return ErrTopicClosed
		}
		if len(t.subs) > 0 {
			break
		}
		if t.canRetainLocked(ev) {
			t.seq++
			ev.Seq = t.seq
			t.retainLocked(ev)
			t.mu.Unlock()
			return nil
		}

		wait := t.changed
		t.mu.Unlock()

		select {
		case <-wait:
		case <-t.done:
			return ErrTopicClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	defer t.mu.Unlock()

	t.seq++
	ev.Seq = t.seq

	delivered := 0
	for sub := range t.subs {
		select {
		case sub.ch <- ev:
			delivered++
		case <-sub.done:
		case <-t.done:
			return ErrTopicClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Every listener detached mid-delivery: keep the event for the next one.
	if delivered == 0 {
		t.retainLocked(ev)
	}
	return nil
}

func (t *topic) subscribe() (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTopicClosed
	}

	sub := newSubscription(t)
	sub.backlog = t.retained
	t.retained = nil
	t.retainedBytes = 0
	t.subs[sub] = struct{}{}
	t.notifyLocked()

	return sub, nil
}

func (t *topic) unsubscribe(sub *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	delete(t.subs, sub)
	if len(t.subs) == 0 {
		pending := sub.drain()
		if len(pending) > 0 {
			t.retained = append(pending, t.retained...)
			t.retainedBytes = 0
			for _, ev := range t.retained {
				t.retainedBytes += len(ev.Data)
			}
		}
	}
	t.notifyLocked()
}

func (t *topic) close() {
	t.closeOnce.Do(func() {
		close(t.done)

		t.mu.Lock()
		defer t.mu.Unlock()

		t.closed = true
		for sub := range t.subs {
			close(sub.ch)
		}
		t.subs = nil
		t.retained = nil
		t.retainedBytes = 0
		t.notifyLocked()
	})
}
