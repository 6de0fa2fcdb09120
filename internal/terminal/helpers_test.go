package terminal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/termhub/internal/events"
	"github.com/stretchr/testify/require"
)

// countingRecorder captures metrics calls
type countingRecorder struct {
	mu          sync.Mutex
	opened      map[string]int
	spawnFailed map[string]int
	exits       map[string]int
	bytes       map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		opened:      map[string]int{},
		spawnFailed: map[string]int{},
		exits:       map[string]int{},
		bytes:       map[string]int{},
	}
}

func (c *countingRecorder) SessionOpened(kind string) {
	c.mu.Lock()
	c.opened[kind]++
	c.mu.Unlock()
}

func (c *countingRecorder) SpawnFailed(kind string) {
	c.mu.Lock()
	c.spawnFailed[kind]++
	c.mu.Unlock()
}

func (c *countingRecorder) SessionExited(reason string) {
	c.mu.Lock()
	c.exits[reason]++
	c.mu.Unlock()
}

func (c *countingRecorder) PTYBytes(direction string, n int) {
	c.mu.Lock()
	c.bytes[direction] += n
	c.mu.Unlock()
}

func (c *countingRecorder) exitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.exits {
		total += n
	}
	return total
}

func (c *countingRecorder) exitsFor(reason string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exits[reason]
}

func (c *countingRecorder) bytesFor(direction string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes[direction]
}

func (c *countingRecorder) spawnFailures(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spawnFailed[kind]
}

type testEnv struct {
	reg     *Registry
	hub     *events.Hub
	metrics *countingRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hub := events.NewHub(events.DefaultConfig(), nil)
	rec := newCountingRecorder()
	reg := NewRegistry(hub, nil, DefaultOptions()).WithMetrics(rec)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
		hub.Shutdown()
	})

	return &testEnv{reg: reg, hub: hub, metrics: rec}
}

// requirePTY skips tests on hosts without a PTY device
func requirePTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no PTY device available")
	}
}

func requireTool(t *testing.T, name string) string {
	t.Helper()
	requirePTY(t)
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found on PATH", name)
	}
	return path
}

// openRaw starts program with the line discipline disabled, so the output
// stream carries exactly the bytes the program writes.
func (e *testEnv) openRaw(t *testing.T, name string, args ...string) string {
	t.Helper()
	sid, err := e.reg.Open(context.Background(), KindLocal, SpawnSpec{
		Program: requireTool(t, name),
		Args:    args,
		Raw:     true,
	})
	require.NoError(t, err)
	return sid
}

func (e *testEnv) subscribe(t *testing.T, sid string) *events.Subscription {
	t.Helper()
	sub, err := e.hub.Subscribe(sid)
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return sub
}

// readUntil accumulates data events until done reports true, the exit event
// arrives, or the timeout expires. It returns the data seen and the exit event.
func readUntil(t *testing.T, sub *events.Subscription, timeout time.Duration, done func([]byte) bool) ([]byte, *events.Event) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var buf bytes.Buffer
	var lastSeq uint64
	for {
		if done != nil && done(buf.Bytes()) {
			return buf.Bytes(), nil
		}

		ev, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("waiting for output (have %q): %v", buf.String(), err)
		}
		require.Greater(t, ev.Seq, lastSeq, "events must arrive in sequence order")
		lastSeq = ev.Seq

		switch ev.Type {
		case events.TypeData:
			buf.Write(ev.Data)
		case events.TypeExit:
			return buf.Bytes(), &ev
		}
	}
}

func readUntilExit(t *testing.T, sub *events.Subscription, timeout time.Duration) ([]byte, events.Event) {
	t.Helper()
	data, exit := readUntil(t, sub, timeout, nil)
	require.NotNil(t, exit)
	return data, *exit
}

// fakeProcess is a scripted Process. Output written to out reaches the pump.
type fakeProcess struct {
	r   *io.PipeReader
	out *io.PipeWriter

	mu    sync.Mutex
	input bytes.Buffer
	cols  int
	rows  int

	// gate, when set, holds every Write until it is closed: a child that
	// never reads its input
	gate chan struct{}

	exitOnce    sync.Once
	exitCh      chan struct{}
	code        int
	exited      atomic.Bool
	killed      atomic.Int32
	groupKilled atomic.Int32

	closeOnce sync.Once
	closedCh  chan struct{}
	closed    atomic.Bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{r: r, out: w, exitCh: make(chan struct{}), closedCh: make(chan struct{})}
}

// newStalledProcess returns a fake whose input is never read until open is called
func newStalledProcess() (*fakeProcess, func()) {
	f := newFakeProcess()
	f.gate = make(chan struct{})
	var once sync.Once
	return f, func() { once.Do(func() { close(f.gate) }) }
}

func (f *fakeProcess) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakeProcess) Write(p []byte) (int, error) {
	if f.exited.Load() {
		return 0, ErrProcessExited
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.closedCh:
			return 0, os.ErrClosed
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.Write(p)
}

func (f *fakeProcess) Resize(cols, rows int) error {
	if f.exited.Load() {
		return ErrProcessExited
	}
	f.mu.Lock()
	f.cols, f.rows = cols, rows
	f.mu.Unlock()
	return nil
}

func (f *fakeProcess) size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cols, f.rows
}

func (f *fakeProcess) Wait() (int, error) {
	<-f.exitCh
	return f.code, nil
}

// exit simulates the child terminating with code
func (f *fakeProcess) exit(code int) {
	f.exitOnce.Do(func() {
		f.code = code
		f.exited.Store(true)
		close(f.exitCh)
	})
}

func (f *fakeProcess) Kill() error {
	if f.exited.Load() {
		return nil
	}
	f.killed.Add(1)
	f.exit(137)
	_ = f.out.Close()
	return nil
}

// KillGroup also ends output, as killing whoever holds the terminal would
func (f *fakeProcess) KillGroup() error {
	f.groupKilled.Add(1)
	f.exit(137)
	_ = f.out.Close()
	return nil
}

func (f *fakeProcess) Close() error {
	f.closed.Store(true)
	f.closeOnce.Do(func() { close(f.closedCh) })
	return f.r.CloseWithError(os.ErrClosed)
}

func (f *fakeProcess) Pid() int { return 4242 }

func (f *fakeProcess) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input.String()
}

func newFakeEnv(t *testing.T, proc Process) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.reg.WithSpawner(func(SpawnSpec) (Process, error) { return proc, nil })
	return env
}

func failingSpawner(err error) Spawner {
	return func(SpawnSpec) (Process, error) { return nil, err }
}

var errBoom = errors.New("boom")
