package terminal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSSHArgs(t *testing.T) {
	tests := []struct {
		name    string
		params  SSHParams
		want    []string
		wantErr error
	}{
		{
			name:   "host only",
			params: SSHParams{Host: "example.com"},
			want:   []string{"-tt", "example.com"},
		},
		{
			name:   "user and port",
			params: SSHParams{User: "deploy", Host: "example.com", Port: 2222},
			want:   []string{"-tt", "-p", "2222", "deploy@example.com"},
		},
		{
			name: "identity and extra args",
			params: SSHParams{
				User:         "root",
				Host:         "10.0.0.5",
				IdentityFile: "~/.ssh/id_ed25519",
				ExtraArgs:    []string{"-o", "StrictHostKeyChecking=accept-new"},
			},
			want: []string{"-tt", "-i", "~/.ssh/id_ed25519", "-o", "StrictHostKeyChecking=accept-new", "root@10.0.0.5"},
		},
		{
			name:   "blank identity ignored",
			params: SSHParams{Host: "h", IdentityFile: "   "},
			want:   []string{"-tt", "h"},
		},
		{
			name:    "empty host",
			params:  SSHParams{User: "root", Host: "  "},
			wantErr: ErrInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildSSHArgs(tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSSHScope(t *testing.T) {
	tests := []struct {
		name   string
		params SSHParams
		want   string
	}{
		{"host id wins", SSHParams{HostID: "h-42", User: "u", Host: "x"}, "ssh:h-42"},
		{"default port", SSHParams{User: "u", Host: "example.com"}, "ssh:u@example.com:22"},
		{"custom port", SSHParams{Host: "example.com", Port: 2200}, "ssh:example.com:2200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SSHScope(tt.params))
		})
	}
}

// writeFakeSSH installs a script that prints its arguments and exits
func writeFakeSSH(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ssh")
	script := "#!/bin/sh\necho \"ARGS:$*\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestResolveSSHOverride(t *testing.T) {
	fake := writeFakeSSH(t)
	t.Setenv(SSHEnvVar, fake)

	got, err := ResolveSSH()
	require.NoError(t, err)
	assert.Equal(t, fake, got)
}

func TestResolveSSHOverrideMissing(t *testing.T) {
	t.Setenv(SSHEnvVar, "/nonexistent/ssh")

	_, err := ResolveSSH()
	assert.ErrorIs(t, err, ErrSSHNotFound)
	assert.Contains(t, err.Error(), "install OpenSSH")
}

func TestResolveSSHOverrideByName(t *testing.T) {
	fake := writeFakeSSH(t)
	t.Setenv("PATH", filepath.Dir(fake))
	t.Setenv(SSHEnvVar, filepath.Base(fake))

	got, err := ResolveSSH()
	require.NoError(t, err)
	assert.Equal(t, fake, got)
}

func TestResolveShell(t *testing.T) {
	t.Run("SHELL wins", func(t *testing.T) {
		t.Setenv("SHELL", "/opt/custom/shell")
		got, err := ResolveShell()
		require.NoError(t, err)
		assert.Equal(t, "/opt/custom/shell", got)
	})

	t.Run("falls back to PATH", func(t *testing.T) {
		if _, err := os.Stat("/bin/sh"); err != nil {
			t.Skip("no /bin/sh")
		}
		t.Setenv("SHELL", "")
		t.Setenv("PATH", "/bin:/usr/bin")

		got, err := ResolveShell()
		require.NoError(t, err)
		base := filepath.Base(got)
		assert.Contains(t, shellCandidates, base)
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv("SHELL", "")
		t.Setenv("PATH", t.TempDir())

		_, err := ResolveShell()
		assert.ErrorIs(t, err, ErrShellNotFound)
	})
}

func TestOpenSSHWithFakeClient(t *testing.T) {
	requirePTY(t)
	t.Setenv(SSHEnvVar, writeFakeSSH(t))

	env := newTestEnv(t)
	sid, err := env.reg.OpenSSH(context.Background(), SSHParams{
		User:         "deploy",
		Host:         "example.com",
		Port:         2222,
		IdentityFile: "/keys/id",
		ExtraArgs:    []string{"-A"},
	})
	require.NoError(t, err)

	snap, err := env.reg.Snapshot(sid)
	require.NoError(t, err)
	assert.Equal(t, KindSSH, snap.Kind)
	assert.Equal(t, DefaultSSHTag, snap.Origin[OriginEnvironmentTag])
	assert.Equal(t, "ssh:deploy@example.com:2222", snap.Origin[OriginScope])

	data, exit := readUntilExit(t, env.subscribe(t, sid), 5*time.Second)
	assert.Zero(t, exit.ExitCode)
	assert.Contains(t, string(data), "ARGS:-tt -p 2222 -i /keys/id -A deploy@example.com")
}

func TestOpenSSHErrors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty host", func(t *testing.T) {
		_, err := env.reg.OpenSSH(context.Background(), SSHParams{User: "root"})
		assert.ErrorIs(t, err, ErrInvalidParams)
		assert.False(t, errors.Is(err, ErrSpawn))
	})

	t.Run("missing client", func(t *testing.T) {
		t.Setenv(SSHEnvVar, "/nonexistent/ssh")

		_, err := env.reg.OpenSSH(context.Background(), SSHParams{Host: "example.com"})
		assert.ErrorIs(t, err, ErrSpawn)
		assert.ErrorIs(t, err, ErrSSHNotFound)
		assert.Contains(t, err.Error(), "set TERMHUB_SSH")
	})

	assert.Empty(t, env.reg.List())
}

func TestOpenLocalMissingShell(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("SHELL", "")
	t.Setenv("PATH", t.TempDir())

	_, err := env.reg.OpenLocal(context.Background(), LocalOptions{})
	assert.ErrorIs(t, err, ErrSpawn)
	assert.ErrorIs(t, err, ErrShellNotFound)
	assert.Equal(t, 1, env.metrics.spawnFailures(string(KindLocal)))
}
