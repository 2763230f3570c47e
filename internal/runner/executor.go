// Package runner orchestrates a single workflow run: lock, setup,
// install, generate, publish — strictly in sequence, fail-fast, with
// no retry. The runner owns none of the mechanics itself; it drives a
// StepExecutor for command execution and a Publisher for the Git side,
// so both can be swapped in tests.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/mmr-tortoise/regen/internal/docker"
	"github.com/mmr-tortoise/regen/internal/gitrepo"
	"github.com/mmr-tortoise/regen/internal/model"
)

// StepExecutor runs the install and generate commands of a workflow.
// Two implementations exist: HostExecutor (sh -c on the host) and
// DockerExecutor (one-shot containers of the pinned runtime image).
type StepExecutor interface {
	// Setup provisions the execution environment. For the host this is
	// a no-op; for Docker it verifies the daemon and ensures the image.
	Setup(ctx context.Context, log io.Writer) error

	// Execute runs one step command and returns its exit code. An
	// error is reserved for infrastructure failures (daemon gone,
	// fork failure); a command that ran and exited non-zero returns
	// (code, nil).
	Execute(ctx context.Context, step model.StepName, command, runID string, log io.Writer) (int, error)
}

// Publisher is the Git side of a run. *gitrepo.Publisher satisfies it;
// tests substitute fakes.
type Publisher interface {
	Publish(dir string, opts gitrepo.PublishOptions) (gitrepo.PublishResult, error)
}

// HostExecutor runs step commands directly on the host through
// `sh -c`, with the repository root as working directory. This is the
// mode for workflows without a runtime block — the host is trusted to
// already have the right toolchain.
type HostExecutor struct {
	// RepoRoot is the working directory for every command.
	RepoRoot string

	// Env sets additional environment variables, layered over the
	// current process environment.
	Env map[string]string
}

// Setup is a no-op: host mode assumes a provisioned host.
func (e *HostExecutor) Setup(ctx context.Context, log io.Writer) error {
	return nil
}

// Execute runs the command with `sh -c` and returns its exit code.
// Stdout and stderr both stream to log, interleaved as produced,
// matching what a CI step log looks like.
func (e *HostExecutor) Execute(ctx context.Context, step model.StepName, command, runID string, log io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.RepoRoot
	cmd.Stdout = log
	cmd.Stderr = log
	cmd.Env = overlayEnv(os.Environ(), e.Env)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The command ran and failed — that is a step outcome, not an
		// infrastructure error.
		return exitErr.ExitCode(), nil
	}

	return 0, fmt.Errorf("failed to start %s command: %w", step, err)
}

// overlayEnv appends KEY=VALUE pairs from overrides onto base. Later
// entries win in exec's environment handling, so overrides take effect
// without scrubbing base.
func overlayEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, len(base), len(base)+len(overrides))
	copy(out, base)
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

// DockerExecutor runs step commands in one-shot containers of the
// workflow's pinned runtime image, with the repository bind-mounted at
// the runtime workdir. This is the regen equivalent of a CI job's
// "set up language X.Y" step.
type DockerExecutor struct {
	// Client is the Docker client wrapper.
	Client *docker.Client

	// Runtime is the workflow's runtime block (image, workdir, env).
	Runtime *model.Runtime

	// Workflow is the workflow name, recorded in container labels.
	Workflow string

	// RepoRoot is the host path bind-mounted into each container.
	RepoRoot string
}

// Setup verifies the Docker daemon is reachable, sweeps step containers
// left behind by interrupted runs of this workflow, and ensures the
// pinned image is present locally, pulling it on first use.
func (e *DockerExecutor) Setup(ctx context.Context, log io.Writer) error {
	if err := e.Client.Ping(ctx); err != nil {
		return err
	}

	// Step containers are removed when their command exits, so any
	// survivors belong to a run that died between create and remove.
	stale, err := docker.ListRunContainers(ctx, e.Client, e.Workflow)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		removed, err := docker.RemoveStale(ctx, e.Client, stale)
		if err != nil {
			return err
		}
		fmt.Fprintf(log, "removed %d stale step container(s)\n", len(removed))
	}

	fmt.Fprintf(log, "runtime image: %s\n", e.Runtime.Image)
	return docker.EnsureImage(ctx, e.Client, e.Runtime.Image)
}

// Execute runs one step command in a fresh container and returns its
// exit code. The container is labeled with the workflow, run, and step
// so interrupted runs leave identifiable debris (see docker.RemoveStale).
func (e *DockerExecutor) Execute(ctx context.Context, step model.StepName, command, runID string, log io.Writer) (int, error) {
	return docker.RunStep(ctx, e.Client, docker.StepSpec{
		Image:    e.Runtime.Image,
		Command:  command,
		RepoPath: e.RepoRoot,
		Workdir:  e.Runtime.Workdir,
		Env:      e.Runtime.Env,
		Labels:   docker.BuildLabels(e.Workflow, runID, step.String()),
		Log:      log,
	})
}
