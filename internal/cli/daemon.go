// Package cli — daemon.go implements the "regen daemon" command: the
// scheduled trigger surface. The daemon stays in the foreground, fires a
// run at each cron tick, and also accepts manual dispatches via SIGUSR1
// (on Unix platforms).
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/regen/internal/model"
	"github.com/mmr-tortoise/regen/internal/schedule"
)

// NewDaemonCommand creates the "daemon" cobra command.
func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run workflow on its cron schedule until interrupted",
		Long: `Run in the foreground and execute the workflow at each scheduled time.

The schedule comes from the workflow file's "schedule" field (cron syntax,
default "0 0 * * *"). Runs are strictly sequential: a tick that arrives
while a run is in flight executes after it finishes.

Signals:
  SIGINT/SIGTERM  shut down after the current run (if any) completes
  SIGUSR1         dispatch a manual run immediately (Unix only)

Examples:
  regen daemon
  regen daemon --verbose
  regen daemon --config ./regen.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

// runDaemon loads the workflow once, wires the runner, and hands control
// to the schedule loop until a termination signal arrives.
func runDaemon(ctx context.Context) error {
	wf, repoRoot, err := loadWorkflow()
	if err != nil {
		return err
	}

	r, cleanup, err := newRunner(wf, repoRoot)
	if err != nil {
		return err
	}
	defer cleanup()

	// Declared before NewDaemon so the run callback can report the
	// next fire time via the daemon itself.
	var d *schedule.Daemon
	d, err = schedule.NewDaemon(wf.Schedule, func(runCtx context.Context, trigger model.Trigger) {
		fmt.Fprintf(os.Stderr, "%s starting %s run of %q\n",
			time.Now().UTC().Format(time.RFC3339), trigger, wf.Name)

		result, runErr := r.Run(runCtx, trigger)
		printRunResult(result)
		if runErr != nil {
			// A failed run does not stop the daemon; the next tick
			// gets a fresh attempt. The failure is already visible in
			// the printed result.
			printError(runErr.Error(), nil)
		}

		fmt.Fprintf(os.Stderr, "next scheduled run: %s\n", d.NextFire().Format(time.RFC3339))
	})
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel the loop's context for a clean shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifyDispatch(d)

	fmt.Fprintf(os.Stderr, "daemon started for workflow %q — first scheduled run: %s\n",
		wf.Name, d.NextFire().Format(time.RFC3339))

	if err := d.Run(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	fmt.Fprintln(os.Stderr, "daemon stopped")
	return nil
}
