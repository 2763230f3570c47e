// Package config handles locating, parsing, and validating the workflow
// file that describes a regen job.
//
// Two formats are supported with identical field names:
//   - JSONC ("regen.json", "regen.jsonc") — JSON with comments, stripped
//     with github.com/tidwall/jsonc before parsing with encoding/json.
//     Comments matter here because a workflow file is long-lived
//     configuration people annotate.
//   - YAML ("regen.yaml", "regen.yml") — parsed with gopkg.in/yaml.v3.
//
// Key responsibilities:
//   - Locate the workflow file at the standard paths (Find)
//   - Parse either format into model.Workflow (Load)
//   - Apply defaults and validate the result (ApplyDefaults, Validate)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/regen/internal/model"
	"github.com/mmr-tortoise/regen/internal/schedule"
)

// Default values applied by ApplyDefaults for fields the workflow file
// leaves unset. DefaultSchedule mirrors the classic nightly cron line.
const (
	DefaultSchedule       = "0 0 * * *"
	DefaultOutputs        = "outputs"
	DefaultRemote         = "origin"
	DefaultCommitterName  = "regen-bot"
	DefaultCommitterEmail = "regen-bot@localhost"
	DefaultMessage        = "Update outputs: {timestamp}"
	DefaultWorkdir        = "/workspace"
)

// standardNames lists the workflow file names probed by Find, in
// priority order. The first existing file wins.
var standardNames = []string{
	"regen.json",
	"regen.jsonc",
	"regen.yaml",
	"regen.yml",
}

// Find locates the workflow file in the given directory by probing the
// standard names in order.
//
// Returns a CLIError with ExitConfigNotFound when none exists.
func Find(dir string) (string, error) {
	for _, name := range standardNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}

	return "", model.NewCLIError(
		model.ExitConfigNotFound,
		fmt.Sprintf("no workflow file found in %s (looked for %s)",
			dir, strings.Join(standardNames, ", ")),
	)
}

// Load reads and parses the workflow file at the given path, applies
// defaults, and validates the result. The format is chosen by file
// extension: .yaml/.yml are parsed as YAML, everything else as JSONC.
func Load(path string) (*model.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigNotFound,
				fmt.Sprintf("workflow file not found: %s", path),
				err,
			)
		}
		return nil, model.WrapCLIError(
			model.ExitConfigNotFound,
			fmt.Sprintf("failed to read workflow file: %s", path),
			err,
		)
	}

	var wf model.Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigNotFound,
				fmt.Sprintf("failed to parse %s", path),
				err,
			)
		}
	default:
		// jsonc.ToJSON strips // and /* */ comments plus trailing
		// commas, leaving plain JSON for the standard decoder.
		if err := json.Unmarshal(jsonc.ToJSON(data), &wf); err != nil {
			return nil, model.WrapCLIError(
				model.ExitConfigNotFound,
				fmt.Sprintf("failed to parse %s", path),
				err,
			)
		}
	}

	ApplyDefaults(&wf)

	if err := Validate(&wf); err != nil {
		return nil, err
	}

	return &wf, nil
}

// ApplyDefaults fills unset optional fields with their documented
// defaults. It never overrides an explicitly set value.
func ApplyDefaults(wf *model.Workflow) {
	if wf.Schedule == "" {
		wf.Schedule = DefaultSchedule
	}
	if wf.Outputs == "" {
		wf.Outputs = DefaultOutputs
	}
	if wf.Publish.Remote == "" {
		wf.Publish.Remote = DefaultRemote
	}
	if wf.Publish.CommitterName == "" {
		wf.Publish.CommitterName = DefaultCommitterName
	}
	if wf.Publish.CommitterEmail == "" {
		wf.Publish.CommitterEmail = DefaultCommitterEmail
	}
	if wf.Publish.Message == "" {
		wf.Publish.Message = DefaultMessage
	}
	if wf.Runtime != nil && wf.Runtime.Workdir == "" {
		wf.Runtime.Workdir = DefaultWorkdir
	}
}

// Validate checks the workflow for structural problems. It is called by
// Load after defaulting, and by `regen validate` to report problems in
// one pass.
//
// All validation failures map to ExitConfigNotFound except the cron
// expression, which keeps its dedicated ExitBadSchedule code from
// schedule.Parse.
func Validate(wf *model.Workflow) error {
	if err := model.ValidateName(wf.Name); err != nil {
		return model.WrapCLIError(model.ExitConfigNotFound, "invalid workflow", err)
	}

	if _, err := schedule.Parse(wf.Schedule); err != nil {
		return err
	}

	if strings.TrimSpace(wf.Generate) == "" {
		return model.NewCLIError(model.ExitConfigNotFound,
			"invalid workflow: generate command must not be empty")
	}

	if err := validateOutputs(wf.Outputs); err != nil {
		return model.WrapCLIError(model.ExitConfigNotFound, "invalid workflow", err)
	}

	if wf.Runtime != nil {
		if strings.TrimSpace(wf.Runtime.Image) == "" {
			return model.NewCLIError(model.ExitConfigNotFound,
				"invalid workflow: runtime.image must not be empty when a runtime block is present")
		}
		if !filepath.IsAbs(wf.Runtime.Workdir) {
			return model.NewCLIError(model.ExitConfigNotFound,
				fmt.Sprintf("invalid workflow: runtime.workdir %q must be an absolute container path", wf.Runtime.Workdir))
		}
	}

	if !strings.Contains(wf.Publish.CommitterEmail, "@") {
		return model.NewCLIError(model.ExitConfigNotFound,
			fmt.Sprintf("invalid workflow: committerEmail %q does not look like an email address", wf.Publish.CommitterEmail))
	}

	return nil
}

// validateOutputs ensures the output directory stays inside the
// repository: it must be a relative path that does not climb out via
// "..". Everything regen stages and commits is confined to this
// directory, so an escaping path would stage arbitrary files.
func validateOutputs(dir string) error {
	if dir == "" {
		return fmt.Errorf("outputs directory must not be empty")
	}
	if filepath.IsAbs(dir) {
		return fmt.Errorf("outputs directory %q must be relative to the repository root", dir)
	}
	clean := filepath.Clean(dir)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == "." {
		return fmt.Errorf("outputs directory %q must stay inside the repository", dir)
	}
	return nil
}
