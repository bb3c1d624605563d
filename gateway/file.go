package gateway

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/berthertogen/delta-kusto/errors"
)

// LocalFile is the File implementation over the local filesystem.
type LocalFile struct{}

// ReadFile implements File.
func (LocalFile) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.File, errors.IOFailed, "cannot read %q: %s", path, err)
	}
	return data, nil
}

// WriteFile implements File. Parent directories are created as needed.
func (LocalFile) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(errors.File, errors.IOFailed, "cannot create %q: %s", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.File, errors.IOFailed, "cannot write %q: %s", path, err)
	}
	return nil
}

// ReadFolder implements File.
func (LocalFile) ReadFolder(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".kql") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(errors.File, errors.IOFailed, "cannot walk %q: %s", root, err)
	}
	sort.Strings(paths)

	contents := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(errors.File, errors.IOFailed, "cannot read %q: %s", path, err)
		}
		contents = append(contents, string(data))
	}
	return contents, nil
}
