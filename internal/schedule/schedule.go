// Package schedule implements the time-based trigger for regen.
//
// It wraps github.com/robfig/cron/v3 for cron-expression parsing and
// provides a Daemon that fires runs at each scheduled time. The daemon
// executes runs strictly sequentially: a schedule tick that arrives
// while a run is still in flight waits for that run to finish rather
// than starting a concurrent one. This, together with the runner's
// lockfile, prevents overlapping runs from racing on the push step.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mmr-tortoise/regen/internal/model"
)

// Parse validates and parses a cron expression using the standard
// five-field format (minute hour dom month dow). Descriptors such as
// "@daily" and "@every 1h" are also accepted, as is a "CRON_TZ=<zone>"
// prefix to pin the schedule to a zone other than the host's local time
// — matching what robfig/cron's standard parser supports.
//
// Returns a CLIError with ExitBadSchedule on malformed expressions so
// the CLI surfaces a dedicated exit code for schedule mistakes.
func Parse(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitBadSchedule,
			fmt.Sprintf("invalid cron expression %q", expr),
			err,
		)
	}
	return sched, nil
}

// Next returns the first scheduled fire time strictly after the given
// instant. Used by `regen validate` to display upcoming fire times and
// by the daemon loop to arm its timer.
func Next(expr string, after time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// RunFunc is the callback the Daemon invokes for each triggered run.
// The trigger distinguishes schedule ticks from manual dispatches.
type RunFunc func(ctx context.Context, trigger model.Trigger)

// Daemon fires the run callback on a cron schedule and on manual
// dispatch. It owns no run state of its own — it is purely the trigger
// surface described by the workflow's schedule field.
type Daemon struct {
	// sched is the parsed cron schedule.
	sched cron.Schedule

	// run is invoked for every trigger, sequentially.
	run RunFunc

	// dispatch carries manual trigger requests into the loop.
	// Buffered with size 1: a dispatch arriving while a run is in
	// flight is remembered; further dispatches during that window
	// coalesce into the pending one.
	dispatch chan struct{}

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewDaemon creates a Daemon for the given cron expression and run
// callback.
func NewDaemon(expr string, run RunFunc) (*Daemon, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		sched:    sched,
		run:      run,
		dispatch: make(chan struct{}, 1),
		now:      time.Now,
	}, nil
}

// Dispatch requests a manual run from a concurrently running daemon.
// It never blocks: if a manual trigger is already pending, the new
// request coalesces into it.
func (d *Daemon) Dispatch() {
	select {
	case d.dispatch <- struct{}{}:
	default:
		// A dispatch is already queued; coalesce.
	}
}

// NextFire returns the next scheduled fire time after now.
func (d *Daemon) NextFire() time.Time {
	return d.sched.Next(d.now())
}

// Run executes the trigger loop until ctx is cancelled. Each iteration
// arms a timer for the next cron fire time and waits for the timer, a
// manual dispatch, or cancellation. The run callback executes inline in
// this goroutine, which is what serializes runs.
//
// Returns ctx.Err() on cancellation so callers can distinguish a clean
// shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	for {
		next := d.sched.Next(d.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case <-timer.C:
			d.run(ctx, model.TriggerSchedule)

		case <-d.dispatch:
			timer.Stop()
			d.run(ctx, model.TriggerManual)
		}
	}
}
