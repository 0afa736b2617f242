package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestFindFilesByExtension_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	z := touch(t, dir, "z.hcl")
	nested := touch(t, dir, "a/nested.hcl")
	touch(t, dir, "a/readme.txt")
	touch(t, dir, "b/image.hcl.bak")

	files, err := FindFilesByExtension(dir, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{nested, z}, files)
}

func TestFindFilesByExtension_NoMatches(t *testing.T) {
	files, err := FindFilesByExtension(t.TempDir(), ".hcl")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFindFilesByExtension_MissingRoot(t *testing.T) {
	_, err := FindFilesByExtension(filepath.Join(t.TempDir(), "absent"), ".hcl")
	require.Error(t, err)
}
