package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// repodata directories are outputs of indexing and never scanned
const repodataDir = "repodata"

// FileSystemScanner implements Scanner over an afero filesystem
type FileSystemScanner struct {
	fs afero.Fs
}

// NewFileSystemScanner creates a new filesystem scanner
func NewFileSystemScanner(fs afero.Fs) *FileSystemScanner {
	return &FileSystemScanner{fs: fs}
}

// Scan recursively scans a directory for rpms, in lexical order
func (s *FileSystemScanner) Scan(ctx context.Context, dir string) ([]ScannedPackage, error) {
	var packages []ScannedPackage

	err := afero.Walk(s.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info.IsDir() {
			if info.Name() == repodataDir && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		ok, err := IsRPM(s.fs, path)
		if err != nil {
			logrus.Warnf("Failed to detect type for %s: %v", path, err)
			return nil
		}
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		logrus.Debugf("Found rpm package: %s", path)
		packages = append(packages, ScannedPackage{
			Path: path,
			Rel:  filepath.ToSlash(rel),
			Size: info.Size(),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	return packages, nil
}
