// Package pid guards against a second daemon instance fighting over the
// telemetry database and listen ports.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/vehicled/internal/errors"
)

const pidFile = "vehicled.pid"

func path() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write records the current process ID. A leftover file from a crashed
// instance is overwritten; a file owned by a live process is an error.
func Write() error {
	errFactory := errors.New()

	if raw, err := os.ReadFile(path()); err == nil {
		if owner, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil {
			if alive(owner) {
				return errFactory.New(errors.ErrAlreadyRunning)
			}
		}
	}

	if err := os.WriteFile(path(), []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file. Missing files are fine.
func Remove() error {
	if err := os.Remove(path()); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

// alive probes the process with signal 0.
func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
