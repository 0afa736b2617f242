package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PositionalRootRef(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	cfg, shouldExit, err := Parse([]string{"dashboard"}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "dashboard", cfg.RootRef)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestParse_FlagsOverridePositional(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	cfg, shouldExit, err := Parse([]string{
		"-root", "dashboard",
		"-modules", "manifests",
		"-config", "root.json",
		"-log-level", "debug",
		"-log-format", "json",
	}, out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "dashboard", cfg.RootRef)
	assert.Equal(t, "manifests", cfg.ModulesPath)
	assert.Equal(t, "root.json", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestParse_NoRootPrintsUsage(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	cfg, shouldExit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	_, _, err := Parse([]string{"-log-level", "verbose", "dashboard"}, out)
	require.Error(t, err)
	exitErr, ok := err.(*ExitError)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParse_InvalidLogFormat(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	_, _, err := Parse([]string{"-log-format", "xml", "dashboard"}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log-format")
}

func TestParse_UnknownFlag(t *testing.T) {
	t.Parallel()
	out := &bytes.Buffer{}

	_, _, err := Parse([]string{"--no-such-flag"}, out)
	require.Error(t, err)
	exitErr, ok := err.(*ExitError)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.Code)
}
