package terminal

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/GriffinCanCode/termhub/internal/events"
	"go.uber.org/zap"
)

// pump drains the PTY master in order and publishes every chunk.
// It blocks on bus backpressure instead of dropping output.
func (r *Registry) pump(s *session) {
	defer close(s.pumpDone)

	buf := make([]byte, r.opts.ReadBufferSize)
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			// buf is reused on the next read
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.metrics.PTYBytes(DirectionOut, n)

			ev := events.Event{SessionID: s.id, Type: events.TypeData, Data: chunk}
			if perr := r.bus.Publish(s.ctx, ev); perr != nil {
				r.logger.Debug("Output pump stopped publishing",
					zap.String("session_id", s.id),
					zap.Error(perr),
				)
				break
			}
		}
		if err != nil {
			if !isEndOfOutput(err) {
				r.logger.Warn("PTY read failed",
					zap.String("session_id", s.id),
					zap.Error(err),
				)
			}
			break
		}
	}

	// EOF means exit: make sure the watcher is not left waiting on a child
	// that closed its terminal but kept running.
	_ = s.proc.Kill()
}

// isEndOfOutput reports errors that only mean the terminal is gone.
// Linux returns EIO on the master once the last slave descriptor closes.
func isEndOfOutput(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO)
}
