// Package workspace manages isolated run directories: creation, exclusive
// locking with stale-lock recovery, repository materialization, and cleanup.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	modifiedDirName  = "modified"
	expectedDirName  = "expected"
	artifactsDirName = "artifacts"
)

// SetupError indicates a fatal workspace-phase failure (directory, clone,
// or lock). It aborts the entire run.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("workspace setup: %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Workspace is an isolated, lockable directory tree holding one run's
// source state and output artifacts.
type Workspace struct {
	RunID        string
	Dir          string
	ModifiedDir  string
	ExpectedDir  string
	ArtifactsDir string

	lock *Lock
}

var unsafeRunIDChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewRunID derives a unique run identifier. A non-empty name is sanitized
// and suffixed; otherwise a timestamp plus a short random suffix is used.
func NewRunID(name string) string {
	suffix := uuid.NewString()[:8]
	if name != "" {
		clean := unsafeRunIDChars.ReplaceAllString(strings.TrimSpace(name), "-")
		clean = strings.Trim(clean, "-")
		if clean != "" {
			return fmt.Sprintf("%s-%s", clean, suffix)
		}
	}
	return fmt.Sprintf("run-%d-%s", time.Now().Unix(), suffix)
}

// Create allocates the run directory layout under root and acquires the
// workspace lock. The returned workspace is exclusively owned by the
// calling process until Cleanup.
func Create(root, name string) (*Workspace, error) {
	runID := NewRunID(name)
	dir := filepath.Join(root, runID)

	ws := &Workspace{
		RunID:        runID,
		Dir:          dir,
		ModifiedDir:  filepath.Join(dir, modifiedDirName),
		ExpectedDir:  filepath.Join(dir, expectedDirName),
		ArtifactsDir: filepath.Join(dir, artifactsDirName),
	}

	for _, d := range []string{ws.Dir, ws.ModifiedDir, ws.ArtifactsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, &SetupError{Op: "creating " + d, Err: err}
		}
	}

	lock, err := AcquireLock(ws.Dir)
	if err != nil {
		return nil, &SetupError{Op: "locking " + ws.Dir, Err: err}
	}
	ws.lock = lock

	return ws, nil
}

// Cleanup releases the lock and, unless keep is set, deletes the run
// directory. Safe to call on every exit path; releasing twice is a no-op.
func Cleanup(ws *Workspace, keep bool) error {
	if ws == nil {
		return nil
	}
	if ws.lock != nil {
		ws.lock.Release()
	}
	if keep {
		return nil
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("removing workspace %s: %w", ws.Dir, err)
	}
	return nil
}

// HasExpected reports whether an expected reference tree was materialized.
func (ws *Workspace) HasExpected() bool {
	fi, err := os.Stat(ws.ExpectedDir)
	return err == nil && fi.IsDir()
}
