package terminal

import (
	"errors"
	"fmt"
)

// Sentinel errors for the terminal package
var (
	ErrNotFound       = errors.New("terminal: session not found")
	ErrRegistryClosed = errors.New("terminal: registry closed")
	ErrInvalidParams  = errors.New("terminal: invalid parameters")
	ErrProcessExited  = errors.New("terminal: process exited")
	ErrInputFull      = errors.New("terminal: input queue full")
	ErrShellNotFound  = errors.New("no shell found: set SHELL or install zsh, bash or sh")
	ErrSSHNotFound    = errors.New("ssh client not found: install OpenSSH client or set TERMHUB_SSH")

	// ErrSpawn matches every *SpawnError with errors.Is.
	ErrSpawn = errors.New("terminal: spawn failed")
)

// SpawnError reports a session that could not be started.
// No session record exists when it is returned.
type SpawnError struct {
	Kind    Kind
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Program == "" {
		return fmt.Sprintf("spawn %s session: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("spawn %s session (%s): %v", e.Kind, e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSpawn) match any spawn failure.
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawn
}
