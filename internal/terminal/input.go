package terminal

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// inputQueue buffers input for one session. Callers only ever take mu for an
// append; the session's feeder goroutine does the blocking PTY writes.
type inputQueue struct {
	mu      sync.Mutex
	chunks  [][]byte
	pending int // queued plus in flight
	limit   int

	ready chan struct{}
}

func newInputQueue(limit int) *inputQueue {
	return &inputQueue{
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// push queues a copy of data, or returns ErrInputFull when it does not fit.
// A write is accepted or rejected as a whole.
func (q *inputQueue) push(data []byte) error {
	q.mu.Lock()
	if q.pending+len(data) > q.limit {
		q.mu.Unlock()
		return ErrInputFull
	}
	q.chunks = append(q.chunks, append([]byte(nil), data...))
	q.pending += len(data)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// next waits for the oldest chunk. Returns false once ctx is done.
func (q *inputQueue) next(ctx context.Context) ([]byte, bool) {
	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			chunk := q.chunks[0]
			q.chunks[0] = nil
			q.chunks = q.chunks[1:]
			q.mu.Unlock()
			return chunk, true
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// release frees the space held by a chunk once it left the queue for good
func (q *inputQueue) release(n int) {
	q.mu.Lock()
	q.pending -= n
	q.mu.Unlock()
}

// buffered reports queued and in-flight bytes
func (q *inputQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// feed writes queued input to the PTY in order until the session is torn down.
// A write the child never reads returns once the terminal hangs up, which
// Close forces by killing the process group.
func (r *Registry) feed(s *session) {
	for {
		chunk, ok := s.input.next(s.ctx)
		if !ok {
			return
		}

		err := writeAll(s.proc, chunk)
		s.input.release(len(chunk))
		if err != nil {
			if !errors.Is(err, ErrProcessExited) && s.State() == StateRunning {
				r.logger.Warn("PTY write failed",
					zap.String("session_id", s.id),
					zap.Int("bytes", len(chunk)),
					zap.Error(err),
				)
			}
			continue
		}
		r.metrics.PTYBytes(DirectionIn, len(chunk))
	}
}

func writeAll(p Process, data []byte) error {
	for len(data) > 0 {
		n, err := p.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
