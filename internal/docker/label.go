package docker

// Label key constants define the Docker labels applied to every step
// container regen creates. Step containers are ephemeral — created,
// waited on, and removed within a single step — so the labels exist for
// two reasons: attributing a container to its workflow and run when
// inspecting a live system, and finding leftovers after an interrupted
// run (process killed between create and remove).
//
// All keys share the "regen." prefix to namespace them and avoid
// collisions with labels set by other tools.
const (
	// LabelPrefix is the common prefix for all regen labels.
	LabelPrefix = "regen."

	// LabelManagedBy identifies containers created by regen.
	// This is the primary label used for filtering and cleanup.
	// Key: "regen.managed-by", Value: always "regen".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelWorkflow stores the workflow name the container ran for.
	// Key: "regen.workflow", Value: workflow name (e.g. "iptv-sources").
	LabelWorkflow = LabelPrefix + "workflow"

	// LabelRunID stores the run identifier.
	// Key: "regen.run-id", Value: run ID (e.g. "20260830T000000Z-3f9a2c").
	LabelRunID = LabelPrefix + "run-id"

	// LabelStep stores which step the container executed.
	// Key: "regen.step", Value: "install" or "generate".
	LabelStep = LabelPrefix + "step"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "regen"

// BuildLabels constructs the label map for a step container.
func BuildLabels(workflow, runID, step string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelWorkflow:  workflow,
		LabelRunID:     runID,
		LabelStep:      step,
	}
}
