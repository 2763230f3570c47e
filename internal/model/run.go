package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// StepResult records the outcome of a single step within a run.
type StepResult struct {
	// Step identifies which step this result belongs to.
	Step StepName `json:"step"`

	// Command is the command the step executed. Empty for steps that
	// have no external command (setup on the host, publish).
	Command string `json:"command,omitempty"`

	// ExitCode is the exit code of the step's command. Zero for
	// successful or skipped steps.
	ExitCode int `json:"exitCode"`

	// Duration is how long the step took, measured wall-clock.
	Duration time.Duration `json:"duration"`

	// Skipped is true when the step was not executed at all — an
	// unset install command, or a publish with no changes and
	// allowEmpty disabled.
	Skipped bool `json:"skipped,omitempty"`
}

// RunResult is the aggregate outcome of one workflow run. It is the
// value printed by `regen run` (as text or JSON) and logged per-run by
// `regen daemon`.
type RunResult struct {
	// RunID uniquely identifies this run. Format: UTC timestamp plus a
	// short random suffix (see NewRunID).
	RunID string `json:"runId"`

	// Workflow is the name of the workflow that ran.
	Workflow string `json:"workflow"`

	// Trigger records what started the run (schedule or manual).
	Trigger Trigger `json:"trigger"`

	// Status is the terminal state of the run.
	Status RunStatus `json:"status"`

	// StartedAt is when the run began, in UTC.
	StartedAt time.Time `json:"startedAt"`

	// Duration is the total wall-clock time of the run.
	Duration time.Duration `json:"duration"`

	// Steps holds per-step results in execution order. A failed run
	// contains results up to and including the failed step.
	Steps []StepResult `json:"steps,omitempty"`

	// Published is true when the publish step created a commit.
	// False when the run failed earlier, or when the output directory
	// had no changes and allowEmpty was disabled.
	Published bool `json:"published"`

	// CommitSHA is the SHA of the created commit, when Published.
	CommitSHA string `json:"commitSha,omitempty"`

	// Err holds the failure message for failed runs. Stored as a plain
	// string so RunResult serializes cleanly to JSON.
	Err string `json:"error,omitempty"`
}

// NewRunID generates a run identifier from the given start time plus a
// random suffix. The timestamp prefix keeps IDs sortable; the suffix
// disambiguates runs started within the same second (e.g., a manual
// dispatch racing the schedule).
//
// Example: "20260830T000000Z-3f9a2c"
func NewRunID(start time.Time) string {
	buf := make([]byte, 3)
	// rand.Read on crypto/rand never fails on supported platforms.
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s", start.UTC().Format("20060102T150405Z"), hex.EncodeToString(buf))
}

// RenderMessage expands the commit message template placeholders:
//
//	{timestamp} — the run start time, RFC 3339 in UTC
//	{workflow}  — the workflow name
//	{runId}     — the run identifier
//
// Unknown placeholders are left untouched so that braces in a literal
// message pass through unchanged.
func RenderMessage(template, workflow, runID string, start time.Time) string {
	r := strings.NewReplacer(
		"{timestamp}", start.UTC().Format(time.RFC3339),
		"{workflow}", workflow,
		"{runId}", runID,
	)
	return r.Replace(template)
}
