package terminal

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Process is a child process attached to a pseudo-terminal
type Process interface {
	// Read blocks for output from the PTY master. Only the output pump calls it.
	Read(p []byte) (int, error)

	// Write sends input. Returns ErrProcessExited once the child is gone.
	Write(p []byte) (int, error)

	Resize(cols, rows int) error

	// Wait blocks until the child terminates and returns its exit code.
	// Safe to call more than once.
	Wait() (int, error)

	// Kill force-terminates the child and its process group.
	// A no-op once the child was reaped.
	Kill() error

	// KillGroup signals the child's process group even after the leader was
	// reaped, reaching members that still hold the terminal open.
	KillGroup() error

	// Close releases the PTY master. Idempotent.
	Close() error

	Pid() int
}

// Spawner starts a process for a spec
type Spawner func(spec SpawnSpec) (Process, error)

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File

	exited atomic.Bool

	waitOnce sync.Once
	waitDone chan struct{}
	exitCode int
	waitErr  error

	closeOnce sync.Once
	closeErr  error
}

// StartPTY spawns spec.Program attached to a new PTY of the requested size.
func StartPTY(spec SpawnSpec) (Process, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open PTY: %w", err)
	}
	// The child keeps its own copy of the slave
	defer tty.Close()

	if err := pty.Setsize(ptmx, &pty.Winsize{
		Cols: clampDimension(spec.Cols),
		Rows: clampDimension(spec.Rows),
	}); err != nil {
		ptmx.Close()
		return nil, fmt.Errorf("failed to size PTY: %w", err)
	}

	if spec.Raw {
		if _, err := term.MakeRaw(int(tty.Fd())); err != nil {
			ptmx.Close()
			return nil, fmt.Errorf("failed to set raw mode: %w", err)
		}
	}

	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		return nil, err
	}

	return &ptyProcess{
		cmd:      cmd,
		ptmx:     ptmx,
		waitDone: make(chan struct{}),
	}, nil
}

// buildEnv layers extra variables over the daemon environment in a stable order
func buildEnv(extra map[string]string) []string {
	env := os.Environ()

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}

	return append(env, "TERM=xterm-256color")
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	return p.ptmx.Read(b)
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	if p.exited.Load() {
		return 0, ErrProcessExited
	}
	n, err := p.ptmx.Write(b)
	if err != nil && (errors.Is(err, os.ErrClosed) || p.exited.Load()) {
		return n, ErrProcessExited
	}
	return n, err
}

func (p *ptyProcess) Resize(cols, rows int) error {
	if p.exited.Load() {
		return ErrProcessExited
	}
	return pty.Setsize(p.ptmx, &pty.Winsize{
		Cols: clampDimension(cols),
		Rows: clampDimension(rows),
	})
}

func (p *ptyProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		defer close(p.waitDone)

		err := p.cmd.Wait()
		p.exited.Store(true)
		p.exitCode = exitCode(p.cmd.ProcessState)

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.waitErr = err
		}
	})
	<-p.waitDone
	return p.exitCode, p.waitErr
}

// exitCode follows the shell convention of 128+signal for signalled children
func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func (p *ptyProcess) Kill() error {
	if p.cmd.Process == nil || p.exited.Load() {
		return nil
	}

	// The child leads its own session, so its pid is the group id
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return nil
	}

	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// KillGroup is only safe while some member of the group is known to hold the
// PTY: the group id cannot be reused until its last member is gone.
func (p *ptyProcess) KillGroup() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (p *ptyProcess) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.ptmx.Close()
	})
	return p.closeErr
}

func (p *ptyProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func clampDimension(v int) uint16 {
	switch {
	case v < 1:
		return 1
	case v > maxDimension:
		return maxDimension
	default:
		return uint16(v)
	}
}
