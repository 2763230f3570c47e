package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mmr-tortoise/regen/internal/gitrepo"
	"github.com/mmr-tortoise/regen/internal/model"
)

// Runner executes workflow runs against one repository.
//
// A Runner is built once (by the CLI) and reused across daemon runs.
// It holds no per-run state: each Run call produces a fresh RunResult.
type Runner struct {
	// Workflow is the validated workflow definition.
	Workflow *model.Workflow

	// RepoRoot is the absolute path to the repository root.
	RepoRoot string

	// Executor runs the install and generate commands.
	Executor StepExecutor

	// Publisher handles stage/commit/push.
	Publisher Publisher

	// Log receives step output and run progress lines.
	Log io.Writer

	// Now is the clock, swappable in tests. Nil means time.Now.
	Now func() time.Time

	// StaleLockAfter overrides the lock staleness bound. Zero means
	// the default.
	StaleLockAfter time.Duration
}

// Run executes one full run: lock, setup, install, generate, publish.
// Steps run strictly in sequence and the first failure halts the run —
// there is no retry and no partial publishing. In particular, a failed
// generate step can never produce a commit.
//
// The returned RunResult is always non-nil and describes how far the
// run got. The error, when non-nil, is the CLIError that should decide
// the process exit code.
func (r *Runner) Run(ctx context.Context, trigger model.Trigger) (*model.RunResult, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}

	start := now()
	result := &model.RunResult{
		RunID:     model.NewRunID(start),
		Workflow:  r.Workflow.Name,
		Trigger:   trigger,
		StartedAt: start.UTC(),
	}

	staleAfter := r.StaleLockAfter
	if staleAfter == 0 {
		staleAfter = defaultStaleAfter
	}

	lock, err := acquireLock(r.RepoRoot, result.RunID, staleAfter)
	if err != nil {
		result.Status = model.StatusSkipped
		result.Err = err.Error()
		result.Duration = now().Sub(start)
		return result, err
	}
	defer lock.release()

	runErr := r.runSteps(ctx, result)

	result.Duration = now().Sub(start)
	if runErr != nil {
		result.Status = model.StatusFailed
		result.Err = runErr.Error()
		return result, runErr
	}

	result.Status = model.StatusSucceeded
	return result, nil
}

// runSteps executes the step sequence, appending a StepResult for each
// step that was reached. It returns on the first failure.
func (r *Runner) runSteps(ctx context.Context, result *model.RunResult) error {
	// Setup: provision the runtime. Host mode's setup is a no-op but
	// is still recorded, so every run result has the same step shape.
	if err := r.timedStep(result, model.StepSetup, "", func() (int, error) {
		return 0, r.Executor.Setup(ctx, r.Log)
	}); err != nil {
		return err
	}

	// Install: optional dependency installation.
	if r.Workflow.Install == "" {
		result.Steps = append(result.Steps, model.StepResult{Step: model.StepInstall, Skipped: true})
	} else {
		if err := r.timedStep(result, model.StepInstall, r.Workflow.Install, func() (int, error) {
			return r.Executor.Execute(ctx, model.StepInstall, r.Workflow.Install, result.RunID, r.Log)
		}); err != nil {
			return err
		}
	}

	// Generate: the opaque generator.
	if err := r.timedStep(result, model.StepGenerate, r.Workflow.Generate, func() (int, error) {
		return r.Executor.Execute(ctx, model.StepGenerate, r.Workflow.Generate, result.RunID, r.Log)
	}); err != nil {
		return err
	}

	// The generator must have left an output directory behind;
	// otherwise there is nothing to stage and the workflow is
	// misconfigured or the generator silently did nothing.
	outputsPath := filepath.Join(r.RepoRoot, r.Workflow.Outputs)
	if info, err := os.Stat(outputsPath); err != nil || !info.IsDir() {
		failure := model.NewCLIError(
			model.ExitGeneratorFailed,
			fmt.Sprintf("generator produced no output directory at %s", r.Workflow.Outputs),
		)
		result.Steps = append(result.Steps, model.StepResult{Step: model.StepPublish, Skipped: true})
		return failure
	}

	// Publish: stage, commit, push.
	stepStart := r.clock()()
	pub, err := r.Publisher.Publish(r.Workflow.Outputs, gitrepo.PublishOptions{
		Message: model.RenderMessage(
			r.Workflow.Publish.Message, r.Workflow.Name, result.RunID, result.StartedAt),
		CommitterName:  r.Workflow.Publish.CommitterName,
		CommitterEmail: r.Workflow.Publish.CommitterEmail,
		Branch:         r.Workflow.Publish.Branch,
		Remote:         r.Workflow.Publish.Remote,
		AllowEmpty:     r.Workflow.Publish.AllowEmpty,
		Push:           r.Workflow.Publish.PushEnabled(),
	})
	result.Steps = append(result.Steps, model.StepResult{
		Step:     model.StepPublish,
		Duration: r.clock()().Sub(stepStart),
		Skipped:  err == nil && !pub.Published,
	})
	result.Published = pub.Published
	result.CommitSHA = pub.CommitSHA
	if err != nil {
		return err
	}

	if !pub.Published {
		fmt.Fprintf(r.Log, "no changes in %s — commit skipped\n", r.Workflow.Outputs)
	}
	return nil
}

// timedStep runs one step body, records its StepResult, and converts a
// non-zero exit code into the run's failure error.
func (r *Runner) timedStep(result *model.RunResult, step model.StepName, command string, body func() (int, error)) error {
	start := r.clock()()
	code, err := body()
	result.Steps = append(result.Steps, model.StepResult{
		Step:     step,
		Command:  command,
		ExitCode: code,
		Duration: r.clock()().Sub(start),
	})

	if err != nil {
		return err
	}
	if code != 0 {
		return model.NewCLIError(
			model.ExitGeneratorFailed,
			fmt.Sprintf("%s step failed with exit code %d", step, code),
		)
	}
	return nil
}

// clock returns the runner's clock function.
func (r *Runner) clock() func() time.Time {
	if r.Now != nil {
		return r.Now
	}
	return time.Now
}
