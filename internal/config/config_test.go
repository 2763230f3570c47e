package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/regen/internal/model"
)

// writeFile writes a workflow file into a fresh temp directory and
// returns its path. Each test builds its own fixture inline, in the
// format under test.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// jsoncFixture is a complete workflow file in JSONC form, exercising
// comment stripping and every section.
const jsoncFixture = `{
	// Daily IPTV source refresh.
	"name": "iptv-sources",
	"schedule": "0 0 * * *",
	"runtime": {
		"image": "python:3.11-slim", // pinned runtime
		"env": { "PYTHONUNBUFFERED": "1" }
	},
	"install": "pip install -r requirements.txt",
	"generate": "python main.py",
	"outputs": "outputs",
	"publish": {
		"committerName": "github-actions",
		"committerEmail": "actions@github.com",
		"message": "Update IPTV sources: {timestamp}"
	}
}`

const yamlFixture = `name: iptv-sources
schedule: "30 4 * * *"
install: pip install -r requirements.txt
generate: python main.py
publish:
  committerName: github-actions
  committerEmail: actions@github.com
  push: false
`

func TestLoadJSONC(t *testing.T) {
	path := writeFile(t, "regen.jsonc", jsoncFixture)

	wf, err := Load(path)
	require.NoError(t, err, "Load should succeed for a valid JSONC workflow")

	assert.Equal(t, "iptv-sources", wf.Name)
	assert.Equal(t, "0 0 * * *", wf.Schedule)
	assert.Equal(t, "pip install -r requirements.txt", wf.Install)
	assert.Equal(t, "python main.py", wf.Generate)
	assert.Equal(t, "outputs", wf.Outputs)

	require.NotNil(t, wf.Runtime)
	assert.Equal(t, "python:3.11-slim", wf.Runtime.Image)
	assert.Equal(t, "1", wf.Runtime.Env["PYTHONUNBUFFERED"])
	// Workdir default is applied because the fixture omits it.
	assert.Equal(t, DefaultWorkdir, wf.Runtime.Workdir)

	assert.Equal(t, "github-actions", wf.Publish.CommitterName)
	assert.Equal(t, "actions@github.com", wf.Publish.CommitterEmail)
	assert.Equal(t, "Update IPTV sources: {timestamp}", wf.Publish.Message)
	assert.Equal(t, DefaultRemote, wf.Publish.Remote)
	assert.True(t, wf.Publish.PushEnabled())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "regen.yaml", yamlFixture)

	wf, err := Load(path)
	require.NoError(t, err, "Load should succeed for a valid YAML workflow")

	assert.Equal(t, "iptv-sources", wf.Name)
	assert.Equal(t, "30 4 * * *", wf.Schedule)
	assert.Nil(t, wf.Runtime, "runtime absent means host execution")
	assert.Equal(t, DefaultOutputs, wf.Outputs)
	assert.False(t, wf.Publish.PushEnabled(), "explicit push: false must survive defaulting")
}

func TestLoadDefaults(t *testing.T) {
	// Minimal workflow: only name and generate. Everything else must
	// come from defaults.
	path := writeFile(t, "regen.json", `{"name": "minimal", "generate": "python main.py"}`)

	wf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultSchedule, wf.Schedule)
	assert.Equal(t, DefaultOutputs, wf.Outputs)
	assert.Equal(t, DefaultRemote, wf.Publish.Remote)
	assert.Equal(t, DefaultCommitterName, wf.Publish.CommitterName)
	assert.Equal(t, DefaultCommitterEmail, wf.Publish.CommitterEmail)
	assert.Equal(t, DefaultMessage, wf.Publish.Message)
	assert.False(t, wf.Publish.AllowEmpty)
	assert.True(t, wf.Publish.PushEnabled())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "regen.json"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigNotFound, cliErr.Code)
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeFile(t, "regen.json", `{"name": "broken"`)

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigNotFound, cliErr.Code)
}

func TestLoadRejectsMissingGenerate(t *testing.T) {
	path := writeFile(t, "regen.json", `{"name": "no-generate"}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate command")
}

func TestLoadRejectsBadSchedule(t *testing.T) {
	path := writeFile(t, "regen.json", `{"name": "bad", "schedule": "often", "generate": "true"}`)

	_, err := Load(path)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitBadSchedule, cliErr.Code, "schedule errors keep their dedicated exit code")
}

func TestValidateOutputsPath(t *testing.T) {
	base := model.Workflow{Name: "wf", Schedule: "0 0 * * *", Generate: "true"}
	ApplyDefaults(&base)

	cases := map[string]bool{
		"outputs":         true,
		"data/generated":  true,
		"/etc":            false,
		"../escape":       false,
		"..":              false,
		".":               false,
		"outputs/../../x": false,
	}
	for dir, ok := range cases {
		wf := base
		wf.Outputs = dir
		err := Validate(&wf)
		if ok {
			assert.NoError(t, err, "outputs %q should be accepted", dir)
		} else {
			assert.Error(t, err, "outputs %q should be rejected", dir)
		}
	}
}

func TestValidateRuntime(t *testing.T) {
	wf := model.Workflow{
		Name:     "wf",
		Generate: "python main.py",
		Runtime:  &model.Runtime{},
	}
	ApplyDefaults(&wf)

	// Runtime block without an image is invalid.
	err := Validate(&wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime.image")

	// A relative workdir is invalid.
	wf.Runtime.Image = "python:3.11-slim"
	wf.Runtime.Workdir = "workspace"
	err = Validate(&wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workdir")
}

func TestValidateCommitterEmail(t *testing.T) {
	wf := model.Workflow{Name: "wf", Generate: "true"}
	ApplyDefaults(&wf)
	wf.Publish.CommitterEmail = "not-an-email"

	err := Validate(&wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "committerEmail")
}

func TestFind(t *testing.T) {
	dir := t.TempDir()

	// Nothing present yet.
	_, err := Find(dir)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigNotFound, cliErr.Code)

	// A yaml file is found...
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regen.yaml"), []byte("name: a\n"), 0644))
	path, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "regen.yaml"), path)

	// ...but a json file takes priority when both exist.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regen.json"), []byte("{}"), 0644))
	path, err = Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "regen.json"), path)
}
