package model

// Workflow is the parsed workflow definition — the declarative description
// of one regenerate-and-publish job. It is loaded from a regen.json[c] or
// regen.yaml file at the repository root (see internal/config) and is
// immutable for the lifetime of a run.
//
// Both JSON and YAML tags are present because the loader supports both
// formats with identical field names.
type Workflow struct {
	// Name is the unique identifier for this workflow. It appears in
	// commit messages, container labels, and the lockfile.
	Name string `json:"name" yaml:"name"`

	// Schedule is the cron expression (five fields, or a descriptor such
	// as "@daily") that drives `regen daemon`. Defaults to "0 0 * * *"
	// (midnight UTC daily). `regen run` ignores it.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// Runtime pins the execution environment for the install and
	// generate steps. When nil, steps run directly on the host via
	// `sh -c`. When set, steps run inside a container of the pinned
	// image with the repository bind-mounted at Runtime.Workdir.
	Runtime *Runtime `json:"runtime,omitempty" yaml:"runtime,omitempty"`

	// Install is the dependency installation command (e.g.
	// "pip install -r requirements.txt"). Empty means the install
	// step is skipped.
	Install string `json:"install,omitempty" yaml:"install,omitempty"`

	// Generate is the generator invocation (e.g. "python main.py").
	// Required. The generator is expected to write its results into
	// the Outputs directory; regen does not interpret them.
	Generate string `json:"generate" yaml:"generate"`

	// Outputs is the directory the generator writes into, relative to
	// the repository root. Defaults to "outputs". This is the only
	// path regen stages for commit.
	Outputs string `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Publish controls the stage/commit/push step.
	Publish Publish `json:"publish,omitempty" yaml:"publish,omitempty"`
}

// Runtime describes the pinned container environment for step execution.
// It is the regen equivalent of a CI workflow's "set up language version"
// step: instead of installing a toolchain on the host, the steps run in
// a container of a fixed image.
type Runtime struct {
	// Image is the container image reference, including the version tag
	// that pins the runtime (e.g. "python:3.11-slim"). Required when a
	// runtime block is present.
	Image string `json:"image" yaml:"image"`

	// Workdir is the path inside the container where the repository is
	// bind-mounted and where step commands execute. Defaults to
	// "/workspace".
	Workdir string `json:"workdir,omitempty" yaml:"workdir,omitempty"`

	// Env sets additional environment variables inside the step
	// containers (or in the host step processes when adopted there).
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Publish describes how generated outputs are recorded and published.
type Publish struct {
	// Branch is the branch to push to. Empty means the currently
	// checked-out branch, matching the behavior of pushing from a CI
	// checkout.
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Remote is the git remote to push to. Defaults to "origin".
	Remote string `json:"remote,omitempty" yaml:"remote,omitempty"`

	// CommitterName is the committer identity's name. Defaults to
	// "regen-bot". The identity is passed per-invocation via
	// `git -c user.name=...` and never written to any git config.
	CommitterName string `json:"committerName,omitempty" yaml:"committerName,omitempty"`

	// CommitterEmail is the committer identity's email. Defaults to
	// "regen-bot@localhost".
	CommitterEmail string `json:"committerEmail,omitempty" yaml:"committerEmail,omitempty"`

	// Message is the commit message template. The placeholders
	// {timestamp}, {workflow}, and {runId} are substituted at commit
	// time (see RenderMessage). Defaults to "Update outputs: {timestamp}".
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	// AllowEmpty forces a commit even when the output directory has no
	// changes, via `git commit --allow-empty`. Default false: a run
	// that changes nothing skips the commit and reports published=false
	// rather than failing on an empty commit.
	AllowEmpty bool `json:"allowEmpty,omitempty" yaml:"allowEmpty,omitempty"`

	// Push controls whether the commit is pushed. Default true; set to
	// false to accumulate local commits only (useful when a mirror job
	// handles pushing).
	Push *bool `json:"push,omitempty" yaml:"push,omitempty"`
}

// PushEnabled reports whether the publish step should push.
// The Push field is a *bool so that "absent" (default true) can be
// distinguished from an explicit false in the workflow file.
func (p Publish) PushEnabled() bool {
	return p.Push == nil || *p.Push
}
