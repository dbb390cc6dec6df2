// Package pidfile guards a spool against two schedulers running on it at once.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by Acquire when a live process holds the pid file.
var ErrAlreadyRunning = errors.New("another scheduler is already running")

// Write записывает PID в файл
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	pidData := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(path, []byte(pidData), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// Read читает PID из файла
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file %s: %w", path, err)
	}

	return pid, nil
}

// IsRunning проверяет что процесс запущен
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 проверяет существование процесса
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return errors.Is(err, syscall.EPERM)
	}

	return true
}

// Acquire writes the current pid to path unless a live process already owns
// it. Stale files left by a crashed process are replaced. The returned
// release function removes the file.
func Acquire(path string) (func() error, error) {
	// Missing or unreadable files are treated as stale.
	if pid, err := Read(path); err == nil && pid != os.Getpid() && IsRunning(pid) {
		return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
	}

	if err := Write(path, os.Getpid()); err != nil {
		return nil, err
	}

	return func() error { return Remove(path) }, nil
}

// Remove удаляет PID файл
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
