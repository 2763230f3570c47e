package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- RunStatus tests ---

func TestRunStatusIsValid(t *testing.T) {
	valid := []RunStatus{StatusSucceeded, StatusFailed, StatusSkipped}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "status %q should be valid", s)
	}

	assert.False(t, RunStatus("running").IsValid())
	assert.False(t, RunStatus("").IsValid())
}

func TestParseRunStatus(t *testing.T) {
	// Parsing is case-insensitive; stored values are lowercase.
	s, err := ParseRunStatus("SUCCEEDED")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, s)

	_, err = ParseRunStatus("cancelled")
	assert.Error(t, err)
}

// --- Trigger tests ---

func TestTriggerIsValid(t *testing.T) {
	assert.True(t, TriggerSchedule.IsValid())
	assert.True(t, TriggerManual.IsValid())
	assert.False(t, Trigger("webhook").IsValid())
}

// --- ValidateName tests ---

func TestValidateName(t *testing.T) {
	// Valid names: alphanumeric with interior hyphens.
	for _, name := range []string{"iptv-sources", "daily", "a", "a1-b2"} {
		assert.NoError(t, ValidateName(name), "name %q should be valid", name)
	}

	// Invalid names.
	for _, name := range []string{"", "-leading", "trailing-", "has space", "under_score"} {
		assert.Error(t, ValidateName(name), "name %q should be invalid", name)
	}
}

// --- CLIError tests ---

func TestCLIErrorUnwrap(t *testing.T) {
	inner := errors.New("exit status 128")
	err := WrapCLIError(ExitGitError, "git push failed", inner)

	assert.Equal(t, ExitGitError, err.Code)
	assert.Contains(t, err.Error(), "git push failed")
	assert.Contains(t, err.Error(), "exit status 128")

	// errors.Is should find the wrapped error through Unwrap.
	assert.True(t, errors.Is(err, inner))
}

func TestCLIErrorWithoutUnderlying(t *testing.T) {
	err := NewCLIError(ExitLockHeld, "another run is in progress")
	assert.Equal(t, "another run is in progress", err.Error())
	assert.Nil(t, err.Unwrap())
}

// --- Run ID and message rendering tests ---

func TestNewRunID(t *testing.T) {
	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	id1 := NewRunID(start)
	id2 := NewRunID(start)

	// Both IDs share the timestamp prefix but differ in the random
	// suffix, so two runs started the same second stay distinguishable.
	assert.Regexp(t, `^20260830T000000Z-[0-9a-f]{6}$`, id1)
	assert.Regexp(t, `^20260830T000000Z-[0-9a-f]{6}$`, id2)
	assert.NotEqual(t, id1, id2)
}

func TestRenderMessage(t *testing.T) {
	start := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	msg := RenderMessage("Update outputs: {timestamp} ({workflow}/{runId})",
		"iptv-sources", "20260830T000000Z-abc123", start)
	assert.Equal(t, "Update outputs: 2026-08-30T00:00:00Z (iptv-sources/20260830T000000Z-abc123)", msg)

	// Unknown placeholders pass through unchanged.
	msg = RenderMessage("literal {braces} stay", "wf", "id", start)
	assert.Equal(t, "literal {braces} stay", msg)
}

func TestPublishPushEnabled(t *testing.T) {
	// Absent Push defaults to true.
	assert.True(t, Publish{}.PushEnabled())

	f := false
	assert.False(t, Publish{Push: &f}.PushEnabled())

	tr := true
	assert.True(t, Publish{Push: &tr}.PushEnabled())
}
