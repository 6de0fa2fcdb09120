package terminal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/termhub/internal/events"
	"github.com/GriffinCanCode/termhub/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Byte directions recorded in metrics
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Bus is the outward event channel the registry publishes to
type Bus interface {
	Open(sessionID string) error
	Publish(ctx context.Context, ev events.Event) error
	Close(sessionID string)
}

// Recorder receives session lifecycle measurements
type Recorder interface {
	SessionOpened(kind string)
	SpawnFailed(kind string)
	SessionExited(reason string)
	PTYBytes(direction string, n int)
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened(string) {}
func (nopRecorder) SpawnFailed(string)   {}
func (nopRecorder) SessionExited(string) {}
func (nopRecorder) PTYBytes(string, int) {}

// Options tunes registry defaults
type Options struct {
	DefaultCols    int
	DefaultRows    int
	ReadBufferSize int

	// InputQueueBytes bounds input accepted but not yet taken by the child.
	// A write that does not fit fails with ErrInputFull.
	InputQueueBytes int
}

// DefaultOptions returns the defaults used when a field is zero
func DefaultOptions() Options {
	return Options{
		DefaultCols:     DefaultCols,
		DefaultRows:     DefaultRows,
		ReadBufferSize:  32 * 1024,
		InputQueueBytes: 1 << 20,
	}
}

// Registry owns every terminal session of the process.
// Map mutation is serialized by mu; per-session I/O never takes it for long.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	// retired holds the ids of sessions that were closed and torn down
	retired map[string]struct{}
	closed  bool

	bus     Bus
	spawn   Spawner
	logger  *zap.Logger
	metrics Recorder
	opts    Options
}

// NewRegistry creates a registry publishing to bus
func NewRegistry(bus Bus, logger *zap.Logger, opts Options) *Registry {
	def := DefaultOptions()
	if opts.DefaultCols <= 0 {
		opts.DefaultCols = def.DefaultCols
	}
	if opts.DefaultRows <= 0 {
		opts.DefaultRows = def.DefaultRows
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = def.ReadBufferSize
	}
	if opts.InputQueueBytes <= 0 {
		opts.InputQueueBytes = def.InputQueueBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		sessions: make(map[string]*session),
		retired:  make(map[string]struct{}),
		bus:      bus,
		spawn:    StartPTY,
		logger:   logger,
		metrics:  nopRecorder{},
		opts:     opts,
	}
}

// WithMetrics attaches a metrics recorder
func (r *Registry) WithMetrics(m Recorder) *Registry {
	if m != nil {
		r.metrics = m
	}
	return r
}

// WithSpawner replaces the PTY spawner
func (r *Registry) WithSpawner(s Spawner) *Registry {
	if s != nil {
		r.spawn = s
	}
	return r
}

// OpenLocal starts a local shell session
func (r *Registry) OpenLocal(ctx context.Context, opts LocalOptions) (string, error) {
	spec, err := localSpec(opts)
	if err != nil {
		r.metrics.SpawnFailed(string(KindLocal))
		return "", &SpawnError{Kind: KindLocal, Program: opts.Shell, Err: err}
	}
	return r.Open(ctx, KindLocal, spec)
}

// OpenSSH starts an ssh client session. An empty host is ErrInvalidParams;
// a missing ssh client is a SpawnError wrapping ErrSSHNotFound.
func (r *Registry) OpenSSH(ctx context.Context, p SSHParams) (string, error) {
	spec, err := sshSpec(p)
	if err != nil {
		if errors.Is(err, ErrInvalidParams) {
			return "", err
		}
		r.metrics.SpawnFailed(string(KindSSH))
		return "", &SpawnError{Kind: KindSSH, Program: "ssh", Err: err}
	}
	return r.Open(ctx, KindSSH, spec)
}

// Open spawns spec and registers the session. It returns once the process
// exists; a failure leaves no record behind.
func (r *Registry) Open(ctx context.Context, kind Kind, spec SpawnSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.isClosed() {
		return "", ErrRegistryClosed
	}

	if spec.Cols <= 0 {
		spec.Cols = r.opts.DefaultCols
	}
	if spec.Rows <= 0 {
		spec.Rows = r.opts.DefaultRows
	}
	spec.Cols = int(clampDimension(spec.Cols))
	spec.Rows = int(clampDimension(spec.Rows))

	sid := id.NewSessionID().String()

	// The topic must exist before the first byte can be read
	if err := r.bus.Open(sid); err != nil {
		if errors.Is(err, events.ErrTopicClosed) {
			return "", ErrRegistryClosed
		}
		return "", fmt.Errorf("failed to open event topic: %w", err)
	}

	proc, err := r.spawn(spec)
	if err != nil {
		r.bus.Close(sid)
		r.metrics.SpawnFailed(string(kind))
		r.logger.Warn("Session spawn failed",
			zap.String("kind", string(kind)),
			zap.String("program", spec.Program),
			zap.Error(err),
		)
		return "", &SpawnError{Kind: kind, Program: spec.Program, Err: err}
	}

	s := newSession(sid, kind, spec, proc, r.opts.InputQueueBytes)
	s.transition(StateStarting, StateRunning)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = proc.Kill()
		_, _ = proc.Wait()
		_ = proc.Close()
		r.bus.Close(sid)
		return "", ErrRegistryClosed
	}
	r.sessions[sid] = s
	r.mu.Unlock()

	go r.pump(s)
	go r.feed(s)
	go r.watch(s)

	r.metrics.SessionOpened(string(kind))
	r.logger.Info("Session opened",
		zap.String("session_id", sid),
		zap.String("kind", string(kind)),
		zap.String("program", spec.Program),
		zap.Int("pid", s.pid),
		zap.Int("cols", spec.Cols),
		zap.Int("rows", spec.Rows),
	)

	return sid, nil
}

// Write queues input for a running session. It never waits on the child:
// input the child is not reading piles up until ErrInputFull.
func (r *Registry) Write(sessionID string, data []byte) error {
	return r.WriteWithOrigin(sessionID, data, "")
}

// WriteWithOrigin is Write with a tag for where the input came from.
// Input tagged WriteOriginCommandDock is remembered as the last command;
// typed keystrokes never are.
func (r *Registry) WriteWithOrigin(sessionID string, data []byte, origin string) error {
	s, err := r.running(sessionID)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := s.input.push(data); err != nil {
		r.logger.Debug("Input rejected",
			zap.String("session_id", s.id),
			zap.Int("bytes", len(data)),
			zap.Int("buffered", s.input.buffered()),
		)
		return err
	}

	if origin == WriteOriginCommandDock {
		s.recordCommand(data)
	}
	return nil
}

// Resize updates the terminal size, clamping each value to 1..65535
func (r *Registry) Resize(sessionID string, cols, rows int) error {
	s, err := r.running(sessionID)
	if err != nil {
		return err
	}

	cols = int(clampDimension(cols))
	rows = int(clampDimension(rows))

	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()

	if err := s.proc.Resize(cols, rows); err != nil {
		if errors.Is(err, ErrProcessExited) || s.State() != StateRunning {
			return ErrNotFound
		}
		return fmt.Errorf("failed to resize session %s: %w", sessionID, err)
	}
	s.setSize(cols, rows)
	return nil
}

// Close force-terminates a session and releases everything it holds.
// Idempotent and never fails; unknown ids are ignored. Returns after teardown.
func (r *Registry) Close(sessionID string) error {
	s := r.get(sessionID)
	if s == nil {
		return nil
	}

	switch {
	case s.transition(StateRunning, StateClosed):
		s.cancel()
		r.bus.Close(s.id)
		if err := s.proc.Kill(); err != nil {
			r.logger.Debug("Kill failed",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
		}
		// Output still flowing means something in the group holds the
		// terminal, possibly after the leader was reaped
		select {
		case <-s.pumpDone:
		default:
			if err := s.proc.KillGroup(); err != nil {
				r.logger.Debug("Process group kill failed",
					zap.String("session_id", s.id),
					zap.Error(err),
				)
			}
		}
		_ = s.proc.Close()
		r.logger.Info("Session closed", zap.String("session_id", s.id))

	case s.transition(StateExited, StateClosed):
		r.bus.Close(s.id)
		r.logger.Debug("Exited session closed", zap.String("session_id", s.id))
	}

	r.retire(s)
	return nil
}

// MarkExited acknowledges an exit event. An exited session becomes closed and
// its retained events are released; any other state is left alone.
func (r *Registry) MarkExited(sessionID string) error {
	s := r.get(sessionID)
	if s == nil {
		return nil
	}

	if s.transition(StateExited, StateClosed) {
		r.bus.Close(s.id)
		r.logger.Debug("Exit acknowledged", zap.String("session_id", s.id))
		r.retire(s)
	}
	return nil
}

// Lookup returns the current state of a session. Retired sessions report
// StateClosed.
func (r *Registry) Lookup(sessionID string) (State, error) {
	r.mu.RLock()
	s := r.sessions[sessionID]
	_, retired := r.retired[sessionID]
	r.mu.RUnlock()

	switch {
	case s != nil:
		return s.State(), nil
	case retired:
		return StateClosed, nil
	default:
		return 0, ErrNotFound
	}
}

// Snapshot returns a read-only copy of one session. Details of a closed
// session are gone once its teardown completes.
func (r *Registry) Snapshot(sessionID string) (Snapshot, error) {
	s := r.get(sessionID)
	if s == nil {
		return Snapshot{}, ErrNotFound
	}
	return s.snapshot(), nil
}

// List returns every session that is not closed, oldest first
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	live := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.State() != StateClosed {
			live = append(live, s)
		}
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(live))
	for _, s := range live {
		snaps = append(snaps, s.snapshot())
	}
	// Session ids are ULIDs, so id order is creation order
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Count returns the number of sessions that are not closed
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.State() != StateClosed {
			n++
		}
	}
	return n
}

// Shutdown rejects new sessions and closes every open one concurrently
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for sid, s := range r.sessions {
		if s.State() != StateClosed {
			ids = append(ids, sid)
		}
	}
	r.mu.Unlock()

	r.logger.Info("Closing all sessions", zap.Int("count", len(ids)))

	var g errgroup.Group
	for _, sid := range ids {
		g.Go(func() error { return r.Close(sid) })
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retire waits for teardown, then drops the record and keeps only its id
func (r *Registry) retire(s *session) {
	<-s.done

	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
		r.retired[s.id] = struct{}{}
	}
	r.mu.Unlock()
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Registry) get(sessionID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// running returns the session only while it accepts input
func (r *Registry) running(sessionID string) (*session, error) {
	s := r.get(sessionID)
	if s == nil || s.State() != StateRunning {
		return nil, ErrNotFound
	}
	return s, nil
}
