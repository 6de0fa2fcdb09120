package terminal

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// session is the registry-owned record of one terminal
type session struct {
	id        string
	kind      Kind
	createdAt time.Time
	program   string
	args      []string
	origin    map[string]string
	pid       int

	state atomic.Int32

	proc Process

	// input orders writes so concurrent callers never interleave bytes
	input *inputQueue

	// resizeMu keeps the kernel size and the recorded size in step
	resizeMu sync.Mutex

	metaMu        sync.RWMutex
	cols          int
	rows          int
	exitCode      int
	exitedAt      time.Time
	lastCommand   string
	lastCommandAt time.Time

	// ctx is cancelled on teardown and bounds every publish of the session
	ctx    context.Context
	cancel context.CancelFunc

	pumpDone chan struct{}
	done     chan struct{}
	teardown sync.Once
}

func newSession(sid string, kind Kind, spec SpawnSpec, proc Process, inputLimit int) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        sid,
		kind:      kind,
		createdAt: time.Now(),
		program:   spec.Program,
		args:      slices.Clone(spec.Args),
		origin:    maps.Clone(spec.Origin),
		pid:       proc.Pid(),
		proc:      proc,
		input:     newInputQueue(inputLimit),
		cols:      spec.Cols,
		rows:      spec.Rows,
		exitCode:  -1,
		ctx:       ctx,
		cancel:    cancel,
		pumpDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateStarting))
	return s
}

func (s *session) State() State {
	return State(s.state.Load())
}

func (s *session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *session) setSize(cols, rows int) {
	s.metaMu.Lock()
	s.cols, s.rows = cols, rows
	s.metaMu.Unlock()
}

func (s *session) setExit(code int) {
	s.metaMu.Lock()
	s.exitCode = code
	s.exitedAt = time.Now()
	s.metaMu.Unlock()
}

// recordCommand keeps a normalized copy of command-template input.
// Returns false when nothing remains after normalization.
func (s *session) recordCommand(data []byte) bool {
	cmd := normalizeCommand(data)
	if cmd == "" {
		return false
	}

	s.metaMu.Lock()
	s.lastCommand = cmd
	s.lastCommandAt = time.Now()
	s.metaMu.Unlock()
	return true
}

// normalizeCommand drops CR/LF, trims and caps at maxCommandLength bytes
// without splitting a UTF-8 sequence.
func normalizeCommand(data []byte) string {
	cmd := strings.NewReplacer("\r", "", "\n", "").Replace(string(data))
	cmd = strings.TrimSpace(cmd)
	if len(cmd) <= maxCommandLength {
		return cmd
	}

	cut := maxCommandLength
	for cut > 0 && !utf8.RuneStart(cmd[cut]) {
		cut--
	}
	return cmd[:cut]
}

func (s *session) snapshot() Snapshot {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()

	snap := Snapshot{
		ID:          s.id,
		Kind:        s.kind,
		State:       s.State(),
		Cols:        s.cols,
		Rows:        s.rows,
		CreatedAt:   s.createdAt,
		Origin:      maps.Clone(s.origin),
		Program:     s.program,
		Args:        slices.Clone(s.args),
		PID:         s.pid,
		ExitCode:    s.exitCode,
		LastCommand: s.lastCommand,
	}
	if !s.exitedAt.IsZero() {
		t := s.exitedAt
		snap.ExitedAt = &t
	}
	if !s.lastCommandAt.IsZero() {
		t := s.lastCommandAt
		snap.LastCommandAt = &t
	}
	return snap
}
