package terminal

import (
	"time"

	"github.com/GriffinCanCode/termhub/internal/events"
	"go.uber.org/zap"
)

// Exit reasons recorded in metrics
const (
	ExitReasonExit   = "exit"
	ExitReasonClosed = "closed"
	ExitReasonError  = "error"
)

// watch blocks until the child terminates, then tears the session down once
// the pump has delivered everything the child wrote.
func (r *Registry) watch(s *session) {
	code, err := s.proc.Wait()
	<-s.pumpDone
	r.finish(s, code, err)
}

// finish runs the teardown exactly once per session. The exit event follows
// every data event because the pump has already returned.
func (r *Registry) finish(s *session, code int, waitErr error) {
	s.teardown.Do(func() {
		s.setExit(code)

		reason := ExitReasonExit
		if waitErr != nil {
			reason = ExitReasonError
		}

		if s.transition(StateRunning, StateExited) {
			ev := events.Event{
				SessionID: s.id,
				Type:      events.TypeExit,
				ExitCode:  code,
				Time:      time.Now(),
			}
			if err := r.bus.Publish(s.ctx, ev); err != nil {
				r.logger.Debug("Exit event not delivered",
					zap.String("session_id", s.id),
					zap.Error(err),
				)
			}
		} else {
			// Close got there first; it owns the topic and publishes nothing
			reason = ExitReasonClosed
		}

		if err := s.proc.Close(); err != nil {
			r.logger.Debug("Failed to release PTY",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
		}
		s.cancel()

		r.metrics.SessionExited(reason)

		fields := []zap.Field{
			zap.String("session_id", s.id),
			zap.String("kind", string(s.kind)),
			zap.Int("pid", s.pid),
			zap.Int("exit_code", code),
			zap.String("reason", reason),
		}
		if waitErr != nil {
			fields = append(fields, zap.Error(waitErr))
		}
		r.logger.Info("Session exited", fields...)

		close(s.done)
	})
}
