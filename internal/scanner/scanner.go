package scanner

import "context"

// ScannedPackage represents an rpm file found during scanning
type ScannedPackage struct {
	Path string // Absolute path
	Rel  string // Path relative to the scanned directory
	Size int64
}

// Scanner finds rpm files below a directory
type Scanner interface {
	// Scan recursively scans a directory for rpms
	Scan(ctx context.Context, dir string) ([]ScannedPackage, error)
}
