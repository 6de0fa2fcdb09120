package terminal

import (
	"os"
	"os/exec"
)

var shellCandidates = []string{"zsh", "bash", "sh"}

// ResolveShell picks the local shell: $SHELL when set, otherwise the first of
// zsh, bash and sh found on PATH.
func ResolveShell() (string, error) {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh, nil
	}

	for _, name := range shellCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", ErrShellNotFound
}

// defaultDir is where local shells start when no directory is given
func defaultDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}
