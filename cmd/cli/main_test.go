package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_Help(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	err := run(out, errOut, []string{"-h"})
	require.NoError(t, err, "run() should return nil when the help flag is given")
	require.Contains(t, errOut.String(), "Usage:")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()
	err := run(&bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	manifest := `
component "dashboard" {
  defaults = {
    title = "Home"
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dashboard.hcl"), []byte(manifest), 0o600))

	out := &bytes.Buffer{}
	err := run(out, &bytes.Buffer{}, []string{
		"-modules", dir,
		"-data-dir", t.TempDir(),
		"-log-level", "error",
		"dashboard",
	})
	require.NoError(t, err)

	var tree map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &tree))
	require.Equal(t, "dashboard-1", tree["id"])
}
