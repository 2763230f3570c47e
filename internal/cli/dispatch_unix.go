//go:build unix

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mmr-tortoise/regen/internal/schedule"
)

// notifyDispatch wires SIGUSR1 to the daemon's manual dispatch, so an
// operator can trigger an immediate run with `kill -USR1 <pid>` without
// waiting for the next cron tick.
func notifyDispatch(d *schedule.Daemon) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)

	go func() {
		for range ch {
			d.Dispatch()
		}
	}()
}
