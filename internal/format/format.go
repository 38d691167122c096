// Package format dispatches an rpm lockfile to the handler for its dialect.
package format

import (
	"context"

	"github.com/ralt/rpmprefetch/internal/download"
	"github.com/ralt/rpmprefetch/internal/lockfile"
	"github.com/ralt/rpmprefetch/internal/rootedpath"
	"github.com/spf13/afero"
)

// Handler implements one (vendor, version) lockfile dialect.
//
// A handler moves through Unmatched -> Matched -> Valid. MatchFormat only
// looks at the lockfile header and never fails; ProcessFormat runs the
// full schema validation and returns its error unchanged.
type Handler interface {
	// MatchFormat reports whether the lockfile header belongs to this dialect
	MatchFormat() bool

	// ProcessFormat parses the complete body into the dialect schema
	ProcessFormat() error

	// IsValid reports whether ProcessFormat produced a usable lockfile
	IsValid() bool

	// Download fetches every artifact under outputDir and records its provenance
	Download(ctx context.Context, outputDir rootedpath.RootedPath, opts DownloadOptions) error

	// VerifyDownloaded checks declared sizes and checksums of records
	VerifyDownloaded(records *Metadata, opts DownloadOptions) error

	// Metadata returns the records accumulated by Download
	Metadata() *Metadata
}

// Factory builds a handler around a raw lockfile body
type Factory func(content lockfile.Content) Handler

// DownloadOptions carries the per-run download settings
type DownloadOptions struct {
	Downloader  download.Downloader
	Fs          afero.Fs
	Concurrency int
	Strict      bool
}
