// Package pidfile guards the daemon against running twice per state
// directory.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/grovetools/conductor/errors"
)

// Acquire records the current process in the file at path. A file naming
// a live process other than this one is an ALREADY_EXISTS error; a file
// left by a dead process is replaced. Creation is exclusive so two daemons
// starting together cannot both win.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	self := os.Getpid()
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(self))
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				_ = os.Remove(path)
				return fmt.Errorf("failed to write pid file: %w", werr)
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create pid file: %w", err)
		}

		owner, rerr := Read(path)
		switch {
		case rerr == nil && owner == self:
			return nil
		case rerr == nil && IsProcessAlive(owner):
			return errors.New(errors.ErrCodeAlreadyExists, fmt.Sprintf("daemon already running with PID %d", owner)).
				WithDetail("pid", owner).
				WithDetail("pidFile", path)
		}
		// Dead owner or unreadable contents.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale pid file: %w", err)
		}
	}
	return errors.New(errors.ErrCodeAlreadyExists, "another daemon is starting").WithDetail("pidFile", path)
}

// Release removes the file if it still names this process.
func Release(path string) error {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// Read returns the pid stored at path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsRunning reports whether the process named at path is alive, and its
// pid. A missing file means not running.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return IsProcessAlive(pid), pid, nil
}

// IsProcessAlive sends signal 0 to pid. EPERM means the process exists
// under another user.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
