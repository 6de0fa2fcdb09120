package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/GriffinCanCode/termhub/internal/events"
	"github.com/GriffinCanCode/termhub/internal/shared/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoPreservesOrder(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "cat")
	sub := env.subscribe(t, sid)

	var want bytes.Buffer
	for i := 0; i < 20; i++ {
		chunk := fmt.Sprintf("chunk-%02d;", i)
		want.WriteString(chunk)
		require.NoError(t, env.reg.Write(sid, []byte(chunk)))
	}

	got, exit := readUntil(t, sub, 5*time.Second, func(b []byte) bool {
		return len(b) >= want.Len()
	})
	require.Nil(t, exit)
	assert.Equal(t, want.String(), string(got))
}

func TestOpenReturnsRunningSession(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "cat")

	assert.True(t, id.IsValidSessionID(sid))

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, snap.Kind)
	assert.Equal(t, DefaultCols, snap.Cols)
	assert.Equal(t, DefaultRows, snap.Rows)
	assert.Equal(t, -1, snap.ExitCode)
	assert.Positive(t, snap.PID)
	assert.Nil(t, snap.ExitedAt)

	assert.Len(t, env.reg.List(), 1)
	assert.Equal(t, 1, env.reg.Count())
}

func TestExitCodeAndResizeAfterExit(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "sh", "-c", "printf done; exit 3")
	sub := env.subscribe(t, sid)

	data, exit := readUntilExit(t, sub, 5*time.Second)
	assert.Equal(t, "done", string(data))
	assert.Equal(t, 3, exit.ExitCode)

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateExited, state)

	assert.ErrorIs(t, env.reg.Resize(sid, 100, 40), ErrNotFound)
	assert.ErrorIs(t, env.reg.Write(sid, []byte("x")), ErrNotFound)

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.ExitCode)
	assert.NotNil(t, snap.ExitedAt)
}

func TestMarkExited(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "sh", "-c", "exit 0")
	sub := env.subscribe(t, sid)
	readUntilExit(t, sub, 5*time.Second)

	require.NoError(t, env.reg.MarkExited(sid))
	require.NoError(t, env.reg.MarkExited(sid))

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
	assert.Empty(t, env.reg.List())

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, events.ErrSubscriptionClosed)

	assert.NoError(t, env.reg.Close(sid))
	assert.NoError(t, env.reg.MarkExited("sess_unknown"))
}

func TestMarkExitedIgnoresRunningSession(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "cat")

	require.NoError(t, env.reg.MarkExited(sid))

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
}

func TestConcurrentSessionsAreIsolated(t *testing.T) {
	const sessions = 50

	env := newTestEnv(t)
	requireTool(t, "cat")

	var wg sync.WaitGroup
	errs := make(chan error, sessions)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			sid, err := env.reg.Open(context.Background(), KindLocal, SpawnSpec{
				Program: "cat",
				Raw:     true,
			})
			if err != nil {
				errs <- err
				return
			}
			defer env.reg.Close(sid)

			sub, err := env.hub.Subscribe(sid)
			if err != nil {
				errs <- err
				return
			}
			defer sub.Close()

			marker := fmt.Sprintf("marker-%03d|", i)
			if err := env.reg.Write(sid, []byte(marker)); err != nil {
				errs <- err
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var got strings.Builder
			for got.Len() < len(marker) {
				ev, err := sub.Next(ctx)
				if err != nil {
					errs <- fmt.Errorf("session %d: %w", i, err)
					return
				}
				got.Write(ev.Data)
			}
			if got.String() != marker {
				errs <- fmt.Errorf("session %d received %q", i, got.String())
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestExternalKillEmitsSingleExit(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "sleep", "30")
	sub := env.subscribe(t, sid)

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	require.NoError(t, syscall.Kill(snap.PID, syscall.SIGKILL))

	_, exit := readUntilExit(t, sub, 5*time.Second)
	assert.Equal(t, 128+int(syscall.SIGKILL), exit.ExitCode)

	// Nothing follows the exit event
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NoError(t, env.reg.Close(sid))
	assert.Equal(t, 1, env.metrics.exitCount())
	assert.Equal(t, 1, env.metrics.exitsFor(ExitReasonExit))

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestLateAttachSeesAllOutput(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "sh", "-c", `i=1; while [ $i -le 50 ]; do echo line-$i; i=$((i+1)); done`)

	time.Sleep(200 * time.Millisecond)
	sub := env.subscribe(t, sid)

	data, exit := readUntilExit(t, sub, 5*time.Second)
	assert.Equal(t, 0, exit.ExitCode)

	var want strings.Builder
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&want, "line-%d\n", i)
	}
	assert.Equal(t, want.String(), string(data))
}

func TestConcurrentDoubleClose(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "sleep", "30")
	sub := env.subscribe(t, sid)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.reg.Close(sid))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.metrics.exitCount())
	assert.Equal(t, 1, env.metrics.exitsFor(ExitReasonClosed))

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	// A user close publishes no exit event
	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, events.ErrSubscriptionClosed)

	assert.ErrorIs(t, env.reg.Write(sid, []byte("x")), ErrNotFound)
	assert.ErrorIs(t, env.reg.Resize(sid, 100, 40), ErrNotFound)
	assert.NoError(t, env.reg.Close(sid))
}

func TestClosedSessionIsRetired(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "cat")
	require.NoError(t, env.reg.Close(sid))

	env.reg.mu.RLock()
	_, kept := env.reg.sessions[sid]
	_, retired := env.reg.retired[sid]
	env.reg.mu.RUnlock()
	assert.False(t, kept, "closed record is dropped after teardown")
	assert.True(t, retired)

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)

	_, err = env.reg.Snapshot(sid)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, env.reg.Close(sid))
	assert.NoError(t, env.reg.MarkExited(sid))
	assert.Zero(t, env.reg.Count())
}

func TestAcknowledgedExitIsRetired(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "sh", "-c", "exit 4")
	sub := env.subscribe(t, sid)
	readUntilExit(t, sub, 5*time.Second)

	// Unacknowledged exits keep their details
	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.ExitCode)

	require.NoError(t, env.reg.MarkExited(sid))

	env.reg.mu.RLock()
	assert.Empty(t, env.reg.sessions)
	env.reg.mu.RUnlock()

	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, state)
}

func TestCloseKillsOrphanHoldingTerminal(t *testing.T) {
	env := newTestEnv(t)
	// The background sleep ignores the hangup and keeps the terminal open
	// after its parent exits
	sid := env.openRaw(t, "sh", "-c", `trap "" HUP; sleep 30 & echo $!; exit 0`)
	sub := env.subscribe(t, sid)

	out, exit := readUntil(t, sub, 5*time.Second, func(b []byte) bool {
		return bytes.Contains(b, []byte("\n"))
	})
	require.Nil(t, exit)
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	require.NoError(t, err)

	// The leader is gone but output has not ended, so the session stays up
	time.Sleep(200 * time.Millisecond)
	state, err := env.reg.Lookup(sid)
	require.NoError(t, err)
	require.Equal(t, StateRunning, state)

	closed := make(chan struct{})
	go func() {
		_ = env.reg.Close(sid)
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not end the orphaned process")
	}

	assert.Eventually(t, func() bool { return !processAlive(pid) },
		5*time.Second, 20*time.Millisecond)
}

// processAlive reports whether pid exists and is not a zombie
func processAlive(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return syscall.Kill(pid, 0) == nil
	}
	return !bytes.Contains(stat, []byte(") Z "))
}

func TestCloseUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.reg.Close("sess_missing"))

	_, err := env.reg.Lookup("sess_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.reg.Snapshot("sess_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.reg.Write("sess_missing", []byte("x")), ErrNotFound)
	assert.ErrorIs(t, env.reg.Resize("sess_missing", 80, 24), ErrNotFound)
}

func TestResizeClamps(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "cat")

	tests := []struct {
		name             string
		cols, rows       int
		wantCols, wantRy int
	}{
		{"normal", 100, 40, 100, 40},
		{"zero", 0, 0, 1, 1},
		{"negative", -5, -1, 1, 1},
		{"oversized", 70000, 65536, 65535, 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, env.reg.Resize(sid, tt.cols, tt.rows))
			snap, err := env.reg.Snapshot(sid)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCols, snap.Cols)
			assert.Equal(t, tt.wantRy, snap.Rows)
		})
	}
}

func TestConcurrentResizeKeepsSizeInStep(t *testing.T) {
	proc := newFakeProcess()
	env := newFakeEnv(t, proc)

	sid, err := env.reg.Open(context.Background(), KindLocal, SpawnSpec{Program: "fake"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, env.reg.Resize(sid, 80+n, 24+n))
		}(i)
	}
	wg.Wait()

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	cols, rows := proc.size()
	assert.Equal(t, cols, snap.Cols, "recorded size matches the terminal")
	assert.Equal(t, rows, snap.Rows)
}

func TestResizeVisibleToChild(t *testing.T) {
	env := newTestEnv(t)
	requireTool(t, "stty")
	sid := env.openRaw(t, "sh", "-c", "read x; stty size")
	sub := env.subscribe(t, sid)

	require.NoError(t, env.reg.Resize(sid, 132, 43))
	require.NoError(t, env.reg.Write(sid, []byte("go\n")))

	data, _ := readUntilExit(t, sub, 5*time.Second)
	assert.Contains(t, string(data), "43 132")
}

func TestWriteWithOriginRecordsCommand(t *testing.T) {
	env := newTestEnv(t)
	sid := env.openRaw(t, "cat")

	require.NoError(t, env.reg.WriteWithOrigin(sid, []byte("  ls -la\r\n"), WriteOriginCommandDock))

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, "ls -la", snap.LastCommand)
	require.NotNil(t, snap.LastCommandAt)

	// Typed input never replaces it
	require.NoError(t, env.reg.Write(sid, []byte("secret\r")))
	require.NoError(t, env.reg.WriteWithOrigin(sid, []byte("\r\n"), WriteOriginCommandDock))

	snap, err = env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, "ls -la", snap.LastCommand)
}

func TestSpawnFailureLeavesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	requirePTY(t)

	_, err := env.reg.Open(context.Background(), KindLocal, SpawnSpec{
		Program: "/nonexistent/termhub-test-binary",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawn)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var spawnErr *SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, KindLocal, spawnErr.Kind)
	assert.Equal(t, "/nonexistent/termhub-test-binary", spawnErr.Program)

	assert.Empty(t, env.reg.List())
	assert.Zero(t, env.hub.Len())
	assert.Equal(t, 1, env.metrics.spawnFailures(string(KindLocal)))
}

func TestShutdownClosesEverything(t *testing.T) {
	env := newTestEnv(t)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, env.openRaw(t, "sleep", "30"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, env.reg.Shutdown(ctx))

	for _, sid := range ids {
		state, err := env.reg.Lookup(sid)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)
	}
	assert.Zero(t, env.reg.Count())

	_, err := env.reg.Open(context.Background(), KindLocal, SpawnSpec{Program: "cat"})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestOpenWithCancelledContext(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.reg.Open(ctx, KindLocal, SpawnSpec{Program: "cat"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenLocalUsesShellOverride(t *testing.T) {
	env := newTestEnv(t)
	sh := requireTool(t, "sh")

	sid, err := env.reg.OpenLocal(context.Background(), LocalOptions{
		Shell:          sh,
		Args:           []string{"-c", "printf local-ok"},
		Dir:            t.TempDir(),
		Env:            map[string]string{"TERMHUB_TEST": "1"},
		Cols:           90,
		Rows:           20,
		EnvironmentTag: "DEV",
		Raw:            true,
	})
	require.NoError(t, err)

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, 90, snap.Cols)
	assert.Equal(t, 20, snap.Rows)
	assert.Equal(t, "DEV", snap.Origin[OriginEnvironmentTag])
	assert.Equal(t, "local", snap.Origin[OriginScope])

	data, exit := readUntilExit(t, env.subscribe(t, sid), 5*time.Second)
	assert.Equal(t, "local-ok", string(data))
	assert.Zero(t, exit.ExitCode)
}

func TestOpenLocalDefaultTag(t *testing.T) {
	env := newTestEnv(t)
	sid, err := env.reg.OpenLocal(context.Background(), LocalOptions{
		Shell: requireTool(t, "cat"),
		Raw:   true,
	})
	require.NoError(t, err)

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, DefaultLocalTag, snap.Origin[OriginEnvironmentTag])
}

func TestSessionEnvironment(t *testing.T) {
	env := newTestEnv(t)
	sid, err := env.reg.OpenLocal(context.Background(), LocalOptions{
		Shell: requireTool(t, "sh"),
		Args:  []string{"-c", `printf "%s|%s" "$TERM" "$TERMHUB_TEST"`},
		Env:   map[string]string{"TERMHUB_TEST": "value"},
		Raw:   true,
	})
	require.NoError(t, err)

	data, _ := readUntilExit(t, env.subscribe(t, sid), 5*time.Second)
	assert.Equal(t, "xterm-256color|value", string(data))
}
