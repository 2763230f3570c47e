// step.go implements one-shot step execution inside a pinned runtime
// container. Each install/generate step gets its own container: the
// workflow's image, the repository bind-mounted at the runtime workdir,
// the step command run through `sh -c`, and removal once the command
// exits. Nothing persists between steps except the files the command
// wrote into the bind mount — which is exactly the contract the output
// directory relies on.
package docker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/mmr-tortoise/regen/internal/model"
)

// StepSpec describes one container step execution.
type StepSpec struct {
	// Image is the pinned runtime image reference.
	Image string

	// Command is the shell command, run as `sh -c <command>`.
	Command string

	// RepoPath is the host path of the repository, bind-mounted at
	// Workdir. The generator's writes land directly in the host
	// checkout, so the publish step sees them without any copy-out.
	RepoPath string

	// Workdir is the mount point and working directory inside the
	// container (absolute).
	Workdir string

	// Env sets additional environment variables for the command.
	Env map[string]string

	// Labels are applied to the container (see BuildLabels).
	Labels map[string]string

	// Log receives the command's combined stdout/stderr.
	Log io.Writer
}

// EnsureImage makes sure the given image is available locally, pulling
// it when absent. The pull progress stream is drained (not displayed):
// regen runs headless, and the caller's verbose log already notes that
// a pull is happening.
//
// A locally present image is never re-pulled, so a pinned tag behaves
// like a cached toolchain install rather than a per-run download.
func EnsureImage(ctx context.Context, cli *Client, ref string) error {
	// Check for a local copy first via a reference-filtered image list.
	filterArgs := filters.NewArgs(filters.Arg("reference", ref))
	images, err := cli.Inner().ImageList(ctx, image.ListOptions{Filters: filterArgs})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker images",
			err,
		)
	}
	if len(images) > 0 {
		return nil
	}

	reader, err := cli.Inner().ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	defer reader.Close()

	// The pull is not complete until the progress stream is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("image pull interrupted for %q", ref),
			err,
		)
	}
	return nil
}

// RunStep creates, starts, and waits for a one-shot step container,
// streaming its output to spec.Log. The container is always removed,
// even when the command fails.
//
// Returns the command's exit code. A non-zero exit code is returned
// WITHOUT an error — the caller decides how a failed step maps onto the
// run result. An error is returned only for Docker API failures.
func RunStep(ctx context.Context, cli *Client, spec StepSpec) (int, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        []string{"sh", "-c", spec.Command},
		WorkingDir: spec.Workdir,
		Env:        buildEnv(spec.Env),
		Labels:     spec.Labels,
	}
	hostCfg := &container.HostConfig{
		// Bind the repository read-write: the generate step's whole
		// purpose is to write into the output directory.
		Binds: []string{spec.RepoPath + ":" + spec.Workdir},
	}

	created, err := cli.Inner().ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return 0, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create step container for image %q", spec.Image),
			err,
		)
	}

	// Remove the container on every path after this point. Force
	// handles the still-running case on context cancellation.
	defer func() {
		_ = cli.Inner().ContainerRemove(context.WithoutCancel(ctx), created.ID, container.RemoveOptions{
			Force: true,
		})
	}()

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return 0, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to start step container",
			err,
		)
	}

	// Stream logs while the container runs. Docker multiplexes stdout
	// and stderr over one stream for non-TTY containers; stdcopy.StdCopy
	// demultiplexes it. Both go to the same writer, preserving the
	// behavior of watching a CI step's combined log.
	logs, err := cli.Inner().ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return 0, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to attach to step container logs",
			err,
		)
	}
	defer logs.Close()

	logDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(spec.Log, spec.Log, logs)
		logDone <- copyErr
	}()

	waitCh, errCh := cli.Inner().ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case waitErr := <-errCh:
		return 0, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed waiting for step container",
			waitErr,
		)
	case status := <-waitCh:
		// Drain the log copier before returning so output ordering is
		// stable; the stream ends once the container stops.
		<-logDone

		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("step container error: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// ListRunContainers queries the Docker daemon for containers carrying
// the regen management label, optionally narrowed to one workflow.
// Under normal operation this returns nothing — step containers are
// removed as soon as their command exits — so any hits are leftovers
// from an interrupted run.
func ListRunContainers(ctx context.Context, cli *Client, workflow string) ([]types.Container, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)
	if workflow != "" {
		filterArgs.Add("label", LabelWorkflow+"="+workflow)
	}

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}
	return containers, nil
}

// RemoveStale force-removes the given leftover containers, returning
// the IDs it removed. Errors on individual removals are collected into
// one error so a single stubborn container doesn't stop the sweep.
func RemoveStale(ctx context.Context, cli *Client, containers []types.Container) ([]string, error) {
	var removed []string
	var failures []string

	for _, c := range containers {
		err := cli.Inner().ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", shortID(c.ID), err))
			continue
		}
		removed = append(removed, c.ID)
	}

	if len(failures) > 0 {
		return removed, model.NewCLIError(
			model.ExitDockerNotRunning,
			"failed to remove stale step containers: "+strings.Join(failures, "; "),
		)
	}
	return removed, nil
}

// buildEnv converts an env map to the KEY=VALUE slice the Docker API
// expects. Keys are sorted for deterministic container configs.
func buildEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// shortID truncates a container ID to the 12-character form Docker
// itself displays.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
