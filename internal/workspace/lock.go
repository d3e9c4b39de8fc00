package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// lockFileName is the single mutable shared resource of a workspace path.
const lockFileName = ".evalcraft.lock"

// ErrLockHeld is returned when another live process holds the workspace lock.
var ErrLockHeld = errors.New("workspace is locked by another process")

// lockInfo is the serialized lock payload: owner PID and creation time.
type lockInfo struct {
	PID       int       `json:"pid"`
	CreatedAt time.Time `json:"created_at"`
}

// Lock is an arena-scoped lease on a workspace directory. Release is
// idempotent and must run on all exit paths.
type Lock struct {
	path string

	mu       sync.Mutex
	released bool
}

// AcquireLock writes an exclusive lock file under dir. If an existing
// lock's owner PID is still running it fails with ErrLockHeld; a lock
// whose owner is confirmed dead is removed and acquisition retried once.
func AcquireLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)

	lock, err := tryAcquire(path)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	// Lock file exists. Stale locks (dead owner) are self-healing.
	info, readErr := readLockInfo(path)
	if readErr == nil && pidAlive(info.PID) {
		return nil, fmt.Errorf("%w (pid %d, since %s)", ErrLockHeld, info.PID, info.CreatedAt.Format(time.RFC3339))
	}

	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("removing stale lock %s: %w", path, rmErr)
	}

	return tryAcquire(path)
}

// tryAcquire creates the lock file exclusively, failing with os.ErrExist
// when it is already present.
func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := lockInfo{PID: os.Getpid(), CreatedAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(info); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing lock %s: %w", path, err)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file. Calling it more than once is a no-op.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return
	}
	l.released = true
	os.Remove(l.path)
}

func readLockInfo(path string) (lockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockInfo{}, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return lockInfo{}, fmt.Errorf("parsing lock %s: %w", path, err)
	}
	return info, nil
}

// pidAlive reports whether a process with the given PID is running.
// Signal 0 performs the liveness check without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
