package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_BuildsRootFromManifestAndPrintsTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dashboard.hcl", `
component "dashboard" {
  role = "shell"
  defaults = {
    title   = "Home"
    columns = 2
  }
}
`)
	cfgPath := writeFile(t, dir, "root.json", `{"columns": 3}`)

	cfg, err := NewConfig(Config{
		RootRef:     "dashboard",
		ConfigPath:  cfgPath,
		ModulesPath: dir,
		DataDir:     t.TempDir(),
		LogLevel:    "error",
		LogFormat:   "text",
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	require.NoError(t, NewApp(out, errOut, cfg).Run(context.Background()))

	var tree map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &tree))
	assert.Equal(t, "dashboard-1", tree["id"])
	assert.Equal(t, "shell", tree["role"])

	config := tree["config"].(map[string]any)
	assert.Equal(t, "Home", config["title"])
	assert.Equal(t, float64(3), config["columns"])
}

func TestRun_NestedInstancesAppearInTheTree(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "components.hcl", `
component "dashboard" {}
component "widget" {
  defaults = {
    label = "w"
  }
}
`)
	cfgPath := writeFile(t, dir, "root.json",
		`{"main": ["instance", "widget", {"label": "clock"}]}`)

	cfg, err := NewConfig(Config{
		RootRef:     "dashboard",
		ConfigPath:  cfgPath,
		ModulesPath: dir,
		DataDir:     t.TempDir(),
		LogLevel:    "error",
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	require.NoError(t, NewApp(out, &bytes.Buffer{}, cfg).Run(context.Background()))

	var tree map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &tree))
	widget := tree["config"].(map[string]any)["main"].(map[string]any)
	assert.Equal(t, "widget-1", widget["id"])
	assert.Equal(t, "clock", widget["config"].(map[string]any)["label"])
}

func TestRun_UnknownManifestDirFails(t *testing.T) {
	cfg, err := NewConfig(Config{
		RootRef:     "dashboard",
		ModulesPath: filepath.Join(t.TempDir(), "missing"),
		DataDir:     t.TempDir(),
		LogLevel:    "error",
	})
	require.NoError(t, err)

	err = NewApp(&bytes.Buffer{}, &bytes.Buffer{}, cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load manifests")
}

func TestNewConfig_RequiresRootRef(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)
}
