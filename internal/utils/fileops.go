package utils

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFile writes data to a file, creating directories as needed
func WriteFile(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return afero.WriteFile(fs, path, data, perm)
}

// EnsureDir ensures a directory exists, creating it if necessary
func EnsureDir(fs afero.Fs, path string) error {
	return fs.MkdirAll(path, 0755)
}

// SubDirs returns the names of the directories directly under path,
// sorted by name.
func SubDirs(fs afero.Fs, path string) ([]string, error) {
	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
