package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrRunInProgress is returned when another export run holds the lock.
var ErrRunInProgress = errors.New("another export run is already in progress")

// GetLockFilePath returns the path to the run lock file
func GetLockFilePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".pg-exporter", "export.pid")
}

// AcquireRunLock writes a PID file that guards against two overlapping runs
// selecting and deleting the same rows. A lock left behind by a dead process
// is replaced.
func AcquireRunLock() error {
	lockPath := GetLockFilePath()

	if pid, err := readLockFile(lockPath); err == nil {
		if isProcessRunning(pid) {
			return fmt.Errorf("%w (pid %d)", ErrRunInProgress, pid)
		}
		// Stale lock from a dead process
		_ = os.Remove(lockPath)
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	return nil
}

// ReleaseRunLock removes the run lock file
func ReleaseRunLock() error {
	return os.Remove(GetLockFilePath())
}

// readLockFile reads the PID recorded in the lock file
func readLockFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in lock file: %w", err)
	}

	return pid, nil
}

// isProcessRunning checks if a process with the given PID is running.
// Signal 0 probes for existence without sending anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
