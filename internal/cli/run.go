// Package cli — run.go implements the "regen run" command: the manual
// dispatch surface. One invocation executes one full run (setup →
// install → generate → publish) and prints the run result.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/regen/internal/config"
	"github.com/mmr-tortoise/regen/internal/docker"
	"github.com/mmr-tortoise/regen/internal/gitrepo"
	"github.com/mmr-tortoise/regen/internal/model"
	"github.com/mmr-tortoise/regen/internal/runner"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	dryRun bool // --dry-run: validate and print the plan without executing
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one workflow run now (manual dispatch)",
		Long: `Execute the workflow once, immediately, regardless of its schedule.

The run performs the full sequence: provision the runtime, install
dependencies, run the generator, then stage, commit, and push the output
directory. Any step failure halts the sequence and fails the run.

Examples:
  regen run
  regen run --dry-run
  regen run --config ./regen.yaml --verbose`,

		Args: cobra.NoArgs,

		// RunE is used instead of Run so we can return errors. Cobra will
		// pass them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate the workflow and print the plan without executing")

	return cmd
}

// runOnce loads the workflow, wires a runner, and executes a single
// manually triggered run.
func runOnce(ctx context.Context, flags *runFlags) error {
	wf, repoRoot, err := loadWorkflow()
	if err != nil {
		return err
	}

	if flags.dryRun {
		printPlan(wf, repoRoot)
		return nil
	}

	r, cleanup, err := newRunner(wf, repoRoot)
	if err != nil {
		return err
	}
	defer cleanup()

	result, runErr := r.Run(ctx, model.TriggerManual)
	printRunResult(result)

	// The run error carries the exit code; result printing above has
	// already shown the details.
	return runErr
}

// loadWorkflow resolves the repository root and loads the workflow file,
// honoring the global --config override.
func loadWorkflow() (*model.Workflow, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	repoRoot, err := gitrepo.RepoRoot(cwd)
	if err != nil {
		return nil, "", model.WrapCLIError(model.ExitGitError, "not inside a Git repository", err)
	}
	VerboseLog("Repository root: %s", repoRoot)

	path := configPath
	if path == "" {
		path, err = config.Find(repoRoot)
		if err != nil {
			return nil, "", err
		}
	}
	VerboseLog("Workflow file: %s", path)

	wf, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	VerboseLog("Workflow %q loaded (schedule %q)", wf.Name, wf.Schedule)

	return wf, repoRoot, nil
}

// newRunner builds the Runner for a workflow: host executor for
// workflows without a runtime block, Docker executor otherwise. The
// returned cleanup function releases the Docker client, when one was
// created.
func newRunner(wf *model.Workflow, repoRoot string) (*runner.Runner, func(), error) {
	var executor runner.StepExecutor
	cleanup := func() {}

	if wf.Runtime == nil {
		VerboseLog("Executing steps on the host")
		executor = &runner.HostExecutor{RepoRoot: repoRoot, Env: nil}
	} else {
		VerboseLog("Executing steps in container runtime %q", wf.Runtime.Image)
		client, err := docker.NewClient()
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = client.Close() }
		executor = &runner.DockerExecutor{
			Client:   client,
			Runtime:  wf.Runtime,
			Workflow: wf.Name,
			RepoRoot: repoRoot,
		}
	}

	r := &runner.Runner{
		Workflow:  wf,
		RepoRoot:  repoRoot,
		Executor:  executor,
		Publisher: gitrepo.NewPublisher(repoRoot),
		// Step output goes to stderr: stdout is reserved for the run
		// result, so `regen run --json | jq` works.
		Log: os.Stderr,
	}
	return r, cleanup, nil
}

// printPlan shows what a run would do, for --dry-run.
func printPlan(wf *model.Workflow, repoRoot string) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(wf, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Workflow:  %s\n", wf.Name)
	fmt.Printf("Repo:      %s\n", repoRoot)
	fmt.Printf("Schedule:  %s\n", wf.Schedule)
	if wf.Runtime != nil {
		fmt.Printf("Runtime:   %s (workdir %s)\n", wf.Runtime.Image, wf.Runtime.Workdir)
	} else {
		fmt.Printf("Runtime:   host\n")
	}
	if wf.Install != "" {
		fmt.Printf("Install:   %s\n", wf.Install)
	}
	fmt.Printf("Generate:  %s\n", wf.Generate)
	fmt.Printf("Outputs:   %s\n", wf.Outputs)
	fmt.Printf("Publish:   commit as %s <%s>, push to %s",
		wf.Publish.CommitterName, wf.Publish.CommitterEmail, wf.Publish.Remote)
	if !wf.Publish.PushEnabled() {
		fmt.Printf(" (push disabled)")
	}
	fmt.Println()
}

// printRunResult outputs a RunResult in the appropriate format.
func printRunResult(result *model.RunResult) {
	if result == nil {
		return
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("run %s (%s) %s in %s\n",
		result.RunID, result.Trigger, result.Status, result.Duration.Round(time.Millisecond))

	for _, step := range result.Steps {
		switch {
		case step.Skipped:
			fmt.Printf("  %-9s skipped\n", step.Step)
		case step.ExitCode != 0:
			fmt.Printf("  %-9s exit %d (%s)\n", step.Step, step.ExitCode, step.Duration.Round(time.Millisecond))
		default:
			fmt.Printf("  %-9s ok (%s)\n", step.Step, step.Duration.Round(time.Millisecond))
		}
	}

	switch {
	case result.Published:
		fmt.Printf("  committed %s\n", shortSHA(result.CommitSHA))
	case result.Status == model.StatusSucceeded:
		fmt.Printf("  no changes to publish\n")
	}
}

// shortSHA abbreviates a commit SHA for text output.
func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
