package terminal

import (
	"fmt"
	"time"
)

// Kind selects the spawn strategy of a session
type Kind string

const (
	KindLocal Kind = "local"
	KindSSH   Kind = "ssh"
)

// State is the lifecycle position of a session.
// Transitions only move forward: starting -> running -> exited -> closed,
// with starting/running -> closed on an explicit Close.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state by name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Origin keys understood by the daemon. The registry stores origin values
// without interpreting them.
const (
	OriginEnvironmentTag = "environment_tag"
	OriginScope          = "scope"
	OriginHostID         = "host_id"
)

// Write origins
const (
	// WriteOriginCommandDock marks input sent by the command template feature.
	// Only these writes are recorded as the session's last command.
	WriteOriginCommandDock = "commanddock"
)

const (
	DefaultCols = 120
	DefaultRows = 30

	DefaultLocalTag = "LOCAL"
	DefaultSSHTag   = "UNKNOWN"

	maxDimension     = 65535
	maxCommandLength = 512
)

// SpawnSpec is everything needed to start a process behind a PTY
type SpawnSpec struct {
	Program string
	Args    []string
	Dir     string
	Env     map[string]string
	Cols    int
	Rows    int

	// Raw disables the line discipline (echo, CR/LF mapping) on the slave side.
	Raw bool

	Origin map[string]string
}

// LocalOptions describes a local shell session
type LocalOptions struct {
	// Shell overrides shell resolution. Empty means $SHELL, then zsh, bash, sh.
	Shell          string
	Args           []string
	Dir            string
	Env            map[string]string
	Cols           int
	Rows           int
	EnvironmentTag string
	Raw            bool
}

// SSHParams describes an SSH session. Secrets never travel through here:
// authentication is left to the ssh client, agent and identity file.
type SSHParams struct {
	User           string
	Host           string
	Port           int
	IdentityFile   string
	ExtraArgs      []string
	EnvironmentTag string
	HostID         string
	Cols           int
	Rows           int
}

// Snapshot is a read-only copy of a session record
type Snapshot struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	State         State             `json:"state"`
	Cols          int               `json:"cols"`
	Rows          int               `json:"rows"`
	CreatedAt     time.Time         `json:"created_at"`
	Origin        map[string]string `json:"origin,omitempty"`
	Program       string            `json:"program"`
	Args          []string          `json:"args,omitempty"`
	PID           int               `json:"pid"`
	ExitCode      int               `json:"exit_code"`
	ExitedAt      *time.Time        `json:"exited_at,omitempty"`
	LastCommand   string            `json:"last_command,omitempty"`
	LastCommandAt *time.Time        `json:"last_command_at,omitempty"`
}
