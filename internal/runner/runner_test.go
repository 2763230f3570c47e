package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/regen/internal/gitrepo"
	"github.com/mmr-tortoise/regen/internal/model"
)

// fakePublisher records Publish calls and returns canned results,
// standing in for the git layer.
type fakePublisher struct {
	calls  []gitrepo.PublishOptions
	dirs   []string
	result gitrepo.PublishResult
	err    error
}

func (f *fakePublisher) Publish(dir string, opts gitrepo.PublishOptions) (gitrepo.PublishResult, error) {
	f.dirs = append(f.dirs, dir)
	f.calls = append(f.calls, opts)
	return f.result, f.err
}

// testWorkflow builds a host-mode workflow whose generate command
// writes a file into outputs/, mimicking a real generator.
func testWorkflow() *model.Workflow {
	return &model.Workflow{
		Name:     "iptv-sources",
		Schedule: "0 0 * * *",
		Install:  "",
		Generate: "mkdir -p outputs && echo '#EXTM3U' > outputs/full.m3u",
		Outputs:  "outputs",
		Publish: model.Publish{
			Remote:         "origin",
			CommitterName:  "regen-bot",
			CommitterEmail: "regen-bot@localhost",
			Message:        "Update outputs: {timestamp}",
		},
	}
}

// newTestRunner wires a Runner over a temp directory with a host
// executor and the given fake publisher.
func newTestRunner(t *testing.T, wf *model.Workflow, pub Publisher) *Runner {
	t.Helper()

	root := t.TempDir()
	return &Runner{
		Workflow:  wf,
		RepoRoot:  root,
		Executor:  &HostExecutor{RepoRoot: root},
		Publisher: pub,
		Log:       &bytes.Buffer{},
	}
}

func TestRunSucceeds(t *testing.T) {
	pub := &fakePublisher{result: gitrepo.PublishResult{Published: true, CommitSHA: "abc123", Pushed: true}}
	wf := testWorkflow()
	wf.Install = "true"
	r := newTestRunner(t, wf, pub)

	result, err := r.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, model.StatusSucceeded, result.Status)
	assert.Equal(t, model.TriggerManual, result.Trigger)
	assert.True(t, result.Published)
	assert.Equal(t, "abc123", result.CommitSHA)

	// All four steps present, in order.
	require.Len(t, result.Steps, 4)
	assert.Equal(t, model.StepSetup, result.Steps[0].Step)
	assert.Equal(t, model.StepInstall, result.Steps[1].Step)
	assert.Equal(t, model.StepGenerate, result.Steps[2].Step)
	assert.Equal(t, model.StepPublish, result.Steps[3].Step)

	// The publisher got the outputs dir and a rendered message.
	require.Len(t, pub.calls, 1)
	assert.Equal(t, "outputs", pub.dirs[0])
	assert.Contains(t, pub.calls[0].Message, "Update outputs: ")
	assert.NotContains(t, pub.calls[0].Message, "{timestamp}", "placeholder must be rendered")
	assert.Equal(t, "regen-bot", pub.calls[0].CommitterName)
	assert.True(t, pub.calls[0].Push)
}

func TestRunSkipsInstallWhenUnset(t *testing.T) {
	pub := &fakePublisher{result: gitrepo.PublishResult{Published: true}}
	r := newTestRunner(t, testWorkflow(), pub)

	result, err := r.Run(context.Background(), model.TriggerSchedule)
	require.NoError(t, err)

	require.Len(t, result.Steps, 4)
	assert.Equal(t, model.StepInstall, result.Steps[1].Step)
	assert.True(t, result.Steps[1].Skipped)
}

func TestRunFailedGeneratePreventsPublish(t *testing.T) {
	pub := &fakePublisher{}
	wf := testWorkflow()
	wf.Generate = "exit 7"
	r := newTestRunner(t, wf, pub)

	result, err := r.Run(context.Background(), model.TriggerSchedule)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGeneratorFailed, cliErr.Code)

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.False(t, result.Published)
	assert.Empty(t, pub.calls, "a failed generation must never reach the publisher")

	// The generate step result carries the command's exit code.
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, model.StepGenerate, last.Step)
	assert.Equal(t, 7, last.ExitCode)
}

func TestRunFailedInstallStopsSequence(t *testing.T) {
	pub := &fakePublisher{}
	wf := testWorkflow()
	wf.Install = "exit 1"
	r := newTestRunner(t, wf, pub)

	result, err := r.Run(context.Background(), model.TriggerSchedule)
	require.Error(t, err)

	assert.Equal(t, model.StatusFailed, result.Status)
	// Sequence halted after install: no generate step was recorded.
	require.Len(t, result.Steps, 2)
	assert.Equal(t, model.StepInstall, result.Steps[1].Step)
	assert.Empty(t, pub.calls)
}

func TestRunMissingOutputDirFails(t *testing.T) {
	pub := &fakePublisher{}
	wf := testWorkflow()
	// The generator succeeds but writes nothing.
	wf.Generate = "true"
	r := newTestRunner(t, wf, pub)

	result, err := r.Run(context.Background(), model.TriggerManual)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGeneratorFailed, cliErr.Code)
	assert.Contains(t, err.Error(), "no output directory")

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Empty(t, pub.calls)
}

func TestRunNoChangesReportsUnpublished(t *testing.T) {
	// Publisher reports a clean output directory: no commit created.
	pub := &fakePublisher{result: gitrepo.PublishResult{Published: false}}
	r := newTestRunner(t, testWorkflow(), pub)

	result, err := r.Run(context.Background(), model.TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, model.StatusSucceeded, result.Status)
	assert.False(t, result.Published)
	assert.Empty(t, result.CommitSHA)

	// The publish step is marked skipped when nothing was committed.
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, model.StepPublish, last.Step)
	assert.True(t, last.Skipped)
}

func TestRunPublishFailureFailsRun(t *testing.T) {
	pub := &fakePublisher{
		result: gitrepo.PublishResult{Published: true, CommitSHA: "abc"},
		err:    model.NewCLIError(model.ExitGitError, "git push failed"),
	}
	r := newTestRunner(t, testWorkflow(), pub)

	result, err := r.Run(context.Background(), model.TriggerSchedule)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGitError, cliErr.Code)

	assert.Equal(t, model.StatusFailed, result.Status)
	// The local commit exists even though the push failed.
	assert.True(t, result.Published)
	assert.Equal(t, "abc", result.CommitSHA)
}

func TestRunLockHeldSkips(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestRunner(t, testWorkflow(), pub)

	// Simulate a concurrent run holding the lock.
	held, err := acquireLock(r.RepoRoot, "other-run", time.Hour)
	require.NoError(t, err)
	defer held.release()

	result, err := r.Run(context.Background(), model.TriggerManual)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitLockHeld, cliErr.Code)

	assert.Equal(t, model.StatusSkipped, result.Status)
	assert.Empty(t, result.Steps, "no step may run while the lock is held")
	assert.Empty(t, pub.calls)
}

func TestRunReleasesLock(t *testing.T) {
	pub := &fakePublisher{result: gitrepo.PublishResult{Published: true}}
	r := newTestRunner(t, testWorkflow(), pub)

	_, err := r.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)

	// A second run must be able to acquire the lock again.
	_, err = r.Run(context.Background(), model.TriggerManual)
	require.NoError(t, err)
}

func TestRunResultTimestamps(t *testing.T) {
	pub := &fakePublisher{result: gitrepo.PublishResult{Published: true}}
	r := newTestRunner(t, testWorkflow(), pub)

	// Pin the clock to make identifiers deterministic.
	fixed := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return fixed }

	result, err := r.Run(context.Background(), model.TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, fixed, result.StartedAt)
	assert.Regexp(t, `^20260830T000000Z-[0-9a-f]{6}$`, result.RunID)
}

// --- lock tests ---

func TestAcquireLockConflict(t *testing.T) {
	root := t.TempDir()

	l, err := acquireLock(root, "run-1", time.Hour)
	require.NoError(t, err)
	defer l.release()

	_, err = acquireLock(root, "run-2", time.Hour)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitLockHeld, cliErr.Code)
	assert.Contains(t, err.Error(), "run-1", "lock error should name the holder")
}

func TestAcquireLockStaleTakeover(t *testing.T) {
	root := t.TempDir()

	l, err := acquireLock(root, "dead-run", time.Hour)
	require.NoError(t, err)

	// Age the lockfile past the staleness bound.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(l.path, old, old))

	takeover, err := acquireLock(root, "new-run", time.Hour)
	require.NoError(t, err, "a stale lock must be taken over")
	takeover.release()
}

func TestLockPathPrefersGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))

	assert.Equal(t, filepath.Join(root, ".git", "regen.lock"), lockPath(root))

	// Without .git, the lock goes to the root.
	bare := t.TempDir()
	assert.Equal(t, filepath.Join(bare, "regen.lock"), lockPath(bare))
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	root := t.TempDir()

	l, err := acquireLock(root, "run-1", time.Hour)
	require.NoError(t, err)
	l.release()

	l2, err := acquireLock(root, "run-2", time.Hour)
	require.NoError(t, err)
	l2.release()
}
