package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmr-tortoise/regen/internal/model"
)

// defaultStaleAfter bounds how long a lockfile is honored. A run of a
// daily job finishing in minutes should never approach this; a lock
// older than the bound belongs to a process that died between acquire
// and release, and is taken over.
const defaultStaleAfter = 6 * time.Hour

// lockFileName is the lockfile's base name. The file lives in the
// repository's .git directory so it never shows up in `git status`,
// falling back to the repository root for non-git working directories
// (which only occur in tests).
const lockFileName = "regen.lock"

// runLock is a single-flight lock guarding one repository against
// overlapping runs — the schedule firing while a manual dispatch is
// still publishing would otherwise race on the push step.
//
// The lock is an O_CREATE|O_EXCL file: atomic on every filesystem git
// itself works on (git uses the same technique for index.lock).
type runLock struct {
	path string
}

// acquireLock takes the run lock for the repository, writing the run ID,
// pid, and acquisition time into the lockfile for diagnosis.
//
// If the lockfile exists and is younger than staleAfter, acquisition
// fails with ExitLockHeld. An older lockfile is considered abandoned,
// removed, and acquisition retried once.
func acquireLock(repoRoot, runID string, staleAfter time.Duration) (*runLock, error) {
	path := lockPath(repoRoot)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			fmt.Fprintf(f, "%s %d %s\n", runID, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if closeErr := f.Close(); closeErr != nil {
				_ = os.Remove(path)
				return nil, model.WrapCLIError(model.ExitGeneralError, "failed to write run lock", closeErr)
			}
			return &runLock{path: path}, nil
		}

		if !os.IsExist(err) {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to create run lock", err)
		}

		// Lockfile exists. Check its age; a fresh lock means a live run.
		info, statErr := os.Stat(path)
		if statErr != nil {
			// Raced with the holder releasing — retry the create.
			continue
		}
		if time.Since(info.ModTime()) < staleAfter {
			holder := describeHolder(path)
			return nil, model.NewCLIError(
				model.ExitLockHeld,
				fmt.Sprintf("another run is in progress (lock %s%s)", path, holder),
			)
		}

		// Stale: the owning process died without releasing. Take over.
		_ = os.Remove(path)
	}

	return nil, model.NewCLIError(model.ExitLockHeld,
		fmt.Sprintf("could not acquire run lock %s", path))
}

// release removes the lockfile. Safe to call once per acquired lock;
// a missing file (stale takeover by another process) is not an error.
func (l *runLock) release() {
	_ = os.Remove(l.path)
}

// lockPath picks the lockfile location: inside .git when present so the
// file stays invisible to git, else the repository root.
func lockPath(repoRoot string) string {
	gitDir := filepath.Join(repoRoot, ".git")
	if info, err := os.Stat(gitDir); err == nil && info.IsDir() {
		return filepath.Join(gitDir, lockFileName)
	}
	return filepath.Join(repoRoot, lockFileName)
}

// describeHolder formats the lockfile contents for the lock-held error
// message, so the operator can see which run and pid holds the lock.
func describeHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return ""
	}
	return ", held by " + content
}
