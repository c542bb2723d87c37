// Package runlock guards against concurrent bastion runs on the same host.
//
// The engine is the sole mutator of SSH, firewall, and certificate state for
// the duration of a run. Concurrent invocations are undefined behavior, so
// every entry point acquires this lock first.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
)

// Lock is a held run lock. Release it on every exit path.
type Lock struct {
	path string
}

// Acquire takes the single-writer lock below dir. It fails with LOCK_HELD
// if another live process holds it; a lock left behind by a dead process
// is reclaimed.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(dir, "bastion.lock")

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if err := firstErr(werr, cerr); err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock file: %w", err)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		pid, readErr := readPid(path)
		if readErr == nil && processAlive(pid) {
			return nil, config.ErrLockHeld.
				WithContext(path).
				WithSuggestion(fmt.Sprintf("another bastion run (pid %d) is active; wait for it to finish", pid))
		}

		// Stale lock from a dead process; reclaim and retry once.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}

	return nil, config.ErrLockHeld.WithContext(path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// firstErr returns the first non-nil error so a write failure is not
// masked by a clean close, and vice versa.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return syscall.Kill(pid, 0) == nil
}
