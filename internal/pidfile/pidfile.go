// Package pidfile keeps two orchestrators from sharing one home directory.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunning is returned by Acquire when a live process owns the pid file.
var ErrRunning = errors.New("another scanflow process is running")

// Acquire writes the current pid to path. A pid file left by a dead
// process is taken over.
func Acquire(path string) error {
	pid, err := Read(path)
	switch {
	case err == nil:
		if pid != os.Getpid() && IsProcessAlive(pid) {
			return fmt.Errorf("%w (pid %d, %s)", ErrRunning, pid, path)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		// Unreadable contents; treat as stale.
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the pid file if it still belongs to this process.
func Release(path string) {
	if pid, err := Read(path); err == nil && pid != os.Getpid() {
		return
	}
	_ = os.Remove(path)
}

// Read returns the pid stored at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// IsProcessAlive checks whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without sending a real signal.
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
