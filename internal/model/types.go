package model

import (
	"fmt"
	"regexp"
	"strings"
)

// RunStatus represents the terminal state of a single workflow run.
// A run moves through its steps strictly in order and ends in exactly
// one of these states:
//
//	succeeded — every step completed with exit code 0
//	failed    — a step exited non-zero (or errored); later steps never ran
//	skipped   — the run never started because another run held the lock
type RunStatus string

const (
	// StatusSucceeded indicates all steps completed successfully.
	StatusSucceeded RunStatus = "succeeded"

	// StatusFailed indicates a step failed and the sequence was halted.
	// There is no retry and no partial publishing: a failed generate
	// step means no commit was created.
	StatusFailed RunStatus = "failed"

	// StatusSkipped indicates the run was not started because the
	// single-flight lock was held by another run (e.g., a manual
	// dispatch overlapping the scheduled run).
	StatusSkipped RunStatus = "skipped"
)

// String returns the string representation of RunStatus.
// This method satisfies the fmt.Stringer interface, enabling
// human-readable output in CLI commands and logging.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid checks whether the RunStatus value is one of the
// predefined valid states.
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseRunStatus converts a string to a RunStatus.
// Returns an error if the string does not match any valid status.
func ParseRunStatus(s string) (RunStatus, error) {
	status := RunStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid run status: %q (valid: succeeded, failed, skipped)", s)
	}
	return status, nil
}

// Trigger identifies what started a run: the cron schedule firing, or a
// manual dispatch (the `regen run` command, or SIGUSR1 sent to a daemon).
// These are the only two trigger surfaces — there is no webhook, watch,
// or event-driven trigger.
type Trigger string

const (
	// TriggerSchedule marks runs started by the daemon's cron schedule.
	TriggerSchedule Trigger = "schedule"

	// TriggerManual marks runs started by explicit user request.
	TriggerManual Trigger = "manual"
)

// String returns the string representation of Trigger.
func (t Trigger) String() string {
	return string(t)
}

// IsValid checks whether the Trigger value is one of the predefined
// valid triggers.
func (t Trigger) IsValid() bool {
	return t == TriggerSchedule || t == TriggerManual
}

// StepName identifies one of the fixed steps in a run. The sequence is
// always setup → install → generate → publish; a step runs only after
// the previous one succeeded.
type StepName string

const (
	// StepSetup provisions the runtime. For host execution this is a
	// no-op; for container execution it verifies the Docker daemon and
	// ensures the pinned image is present.
	StepSetup StepName = "setup"

	// StepInstall runs the dependency installation command, when one
	// is configured. Workflows without an install command skip it.
	StepInstall StepName = "install"

	// StepGenerate runs the generator program. The generator is fully
	// opaque to regen: only its exit code and the files it writes into
	// the output directory matter.
	StepGenerate StepName = "generate"

	// StepPublish stages the output directory, commits, and pushes.
	StepPublish StepName = "publish"
)

// String returns the string representation of StepName.
func (n StepName) String() string {
	return string(n)
}

// nameRegex validates workflow names: alphanumeric + hyphens only,
// must start and end with alphanumeric.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]$|^[a-zA-Z0-9]$`)

// ValidateName checks if the given name is a valid workflow name.
// Valid names contain only alphanumeric characters and hyphens,
// and must start/end with an alphanumeric character. The name is used
// in commit messages, container labels, and lockfile contents, so the
// conservative character set keeps all of those unambiguous.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("workflow name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid workflow name %q: must contain only alphanumeric characters and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// ExitCode defines standard CLI exit codes.
//
// Exit codes allow scripts and schedulers wrapping regen to distinguish
// failure modes without parsing output.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigNotFound indicates no workflow file was found at any
	// of the standard paths, or the file failed to parse/validate.
	ExitConfigNotFound ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	// Only reachable for workflows that configure a container runtime.
	ExitDockerNotRunning ExitCode = 3

	// ExitGeneratorFailed indicates the install or generate command
	// exited non-zero.
	ExitGeneratorFailed ExitCode = 4

	// ExitGitError indicates a Git operation (stage/commit/push) failed.
	ExitGitError ExitCode = 5

	// ExitLockHeld indicates another run currently holds the run lock.
	ExitLockHeld ExitCode = 6

	// ExitBadSchedule indicates the cron expression could not be parsed.
	ExitBadSchedule ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// It allows errors raised anywhere in the run sequence to control the
// process exit code at the top level.
type CLIError struct {
	// Code is the OS exit code this error maps to.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
