package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// SSHEnvVar overrides ssh client resolution. A value containing a path
// separator must point at an existing file; a bare name is looked up on PATH.
const SSHEnvVar = "TERMHUB_SSH"

// sshFallbackPaths covers installs that are missing from a GUI launcher's PATH
var sshFallbackPaths = []string{
	"/usr/bin/ssh",
	"/usr/local/bin/ssh",
	"/opt/homebrew/bin/ssh",
}

// ResolveSSH locates the ssh client executable.
func ResolveSSH() (string, error) {
	if override := strings.TrimSpace(os.Getenv(SSHEnvVar)); override != "" {
		if strings.ContainsRune(override, os.PathSeparator) {
			if isExecutableFile(override) {
				return override, nil
			}
			return "", fmt.Errorf("%w (%s=%s does not exist)", ErrSSHNotFound, SSHEnvVar, override)
		}
		if path, err := exec.LookPath(override); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w (%s=%s not on PATH)", ErrSSHNotFound, SSHEnvVar, override)
	}

	if path, err := exec.LookPath("ssh"); err == nil {
		return path, nil
	}

	for _, path := range sshFallbackPaths {
		if isExecutableFile(path) {
			return path, nil
		}
	}

	return "", ErrSSHNotFound
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// BuildSSHArgs renders the ssh argument list: -tt, -p, -i, extra args, target.
func BuildSSHArgs(p SSHParams) ([]string, error) {
	host := strings.TrimSpace(p.Host)
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidParams)
	}

	// Force a remote TTY even though our stdin is not a terminal the ssh client recognises
	args := []string{"-tt"}

	if p.Port > 0 {
		args = append(args, "-p", strconv.Itoa(p.Port))
	}
	if identity := strings.TrimSpace(p.IdentityFile); identity != "" {
		args = append(args, "-i", identity)
	}
	args = append(args, p.ExtraArgs...)

	target := host
	if user := strings.TrimSpace(p.User); user != "" {
		target = user + "@" + host
	}
	return append(args, target), nil
}

// SSHScope is the origin scope of an ssh session: ssh:<hostid> when the host
// is known, otherwise ssh:user@host:port.
func SSHScope(p SSHParams) string {
	if p.HostID != "" {
		return "ssh:" + p.HostID
	}

	port := p.Port
	if port <= 0 {
		port = 22
	}
	target := strings.TrimSpace(p.Host)
	if user := strings.TrimSpace(p.User); user != "" {
		target = user + "@" + target
	}
	return fmt.Sprintf("ssh:%s:%d", target, port)
}
