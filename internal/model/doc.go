// Package model defines the domain types and value objects for the
// regen CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (Workflow, RunResult, StepResult, etc.) are transient
// representations built up during a single run — regen keeps no state
// database; the target Git repository itself is the only durable state.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
