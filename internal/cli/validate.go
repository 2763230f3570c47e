// Package cli — validate.go implements the "regen validate" command,
// which checks the workflow file and reports the resolved configuration
// plus the next scheduled fire times, without executing anything.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/regen/internal/model"
	"github.com/mmr-tortoise/regen/internal/schedule"
)

// upcomingFires is how many future fire times validate displays.
const upcomingFires = 3

// NewValidateCommand creates the "validate" cobra command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the workflow file and show the resolved configuration",
		Long: `Load the workflow file, apply defaults, validate every field, and print
the resolved configuration along with the next scheduled run times.

Exits non-zero (with the error printed) when the workflow is invalid,
so validate works as a pre-commit or CI check for workflow files.

Examples:
  regen validate
  regen validate --json
  regen validate --config ./regen.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

// validateOutput is the JSON shape of a successful validate run.
type validateOutput struct {
	Workflow *model.Workflow `json:"workflow"`
	NextRuns []time.Time     `json:"nextRuns"`
}

func runValidate() error {
	wf, repoRoot, err := loadWorkflow()
	if err != nil {
		return err
	}

	// Loading already validated; compute the upcoming schedule.
	next := make([]time.Time, 0, upcomingFires)
	after := time.Now()
	for i := 0; i < upcomingFires; i++ {
		fire, err := schedule.Next(wf.Schedule, after)
		if err != nil {
			return err
		}
		next = append(next, fire)
		after = fire
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(validateOutput{Workflow: wf, NextRuns: next}, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("workflow file is valid\n\n")
	printPlan(wf, repoRoot)
	fmt.Printf("\nNext scheduled runs:\n")
	for _, fire := range next {
		fmt.Printf("  %s\n", fire.Format(time.RFC3339))
	}
	return nil
}
