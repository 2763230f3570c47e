//go:build windows

package cli

import (
	"github.com/mmr-tortoise/regen/internal/schedule"
)

// notifyDispatch is a no-op on Windows: there is no SIGUSR1 equivalent,
// so manual dispatch against a running daemon is not available. Use
// `regen run` from a second terminal instead; the run lock prevents it
// from overlapping a scheduled run.
func notifyDispatch(d *schedule.Daemon) {}
