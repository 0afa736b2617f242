// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension walks rootPath and returns the full paths of every
// file whose name ends with the given extension, including the dot. Paths
// come back sorted, so callers that register what they find (manifest
// loading) do so in a stable order regardless of the walk.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	}
	if err := filepath.WalkDir(rootPath, walk); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
