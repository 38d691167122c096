// Package redhat handles version 1 lockfiles of the "redhat" vendor, as
// produced by rpm-lockfile-prototype.
package redhat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/ralt/rpmprefetch/internal/download"
	"github.com/ralt/rpmprefetch/internal/format"
	"github.com/ralt/rpmprefetch/internal/lockfile"
	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/repo"
	"github.com/ralt/rpmprefetch/internal/rootedpath"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/ralt/rpmprefetch/internal/verify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	Vendor  = "redhat"
	Version = 1
)

// Handler implements format.Handler for the redhat dialect
type Handler struct {
	content  lockfile.Content
	root     *lockfile.Root
	metadata *format.Metadata
}

// New is a format.Factory
func New(content lockfile.Content) format.Handler {
	return &Handler{
		content:  content,
		metadata: format.NewMetadata(),
	}
}

// MatchFormat implements format.Handler
func (h *Handler) MatchFormat() bool {
	header, err := lockfile.ParseHeader(h.content)
	if err != nil {
		logrus.Debugf("Lockfile header is not usable: %v", err)
		return false
	}
	return header.Vendor == Vendor && header.Version == Version
}

// ProcessFormat implements format.Handler
func (h *Handler) ProcessFormat() error {
	root, err := lockfile.ParseV1(h.content)
	if err != nil {
		return &models.PrefetchError{
			Type:     models.ErrPackageRejected,
			Err:      err,
			Solution: "Check the correct format of the lockfile and regenerate it if needed.",
		}
	}
	h.root = root
	return nil
}

// IsValid implements format.Handler
func (h *Handler) IsValid() bool {
	return h.root != nil
}

// Metadata implements format.Handler
func (h *Handler) Metadata() *format.Metadata {
	return h.metadata
}

// Download implements format.Handler. Each architecture is fetched in one
// batch, verified, and only then added to the handler metadata.
func (h *Handler) Download(ctx context.Context, outputDir rootedpath.RootedPath, opts format.DownloadOptions) error {
	if h.root == nil {
		return errors.New("lockfile has not been processed")
	}
	fs := filesystem(opts)

	for _, arch := range h.root.Arches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkSegment("architecture", arch.Arch); err != nil {
			return err
		}
		if arch.Arch == repo.SourcesDir {
			return models.NewPackageRejected(
				fmt.Sprintf("architecture name '%s' is reserved", arch.Arch),
				"Rename the architecture in the lockfile.",
			)
		}

		files, records, err := plan(fs, outputDir, arch)
		if err != nil {
			return err
		}

		logrus.Infof("Downloading %d files for %s", len(files), arch.Arch)
		if err := opts.Downloader.Download(ctx, files, opts.Concurrency); err != nil {
			return &models.PrefetchError{
				Type:    models.ErrFetch,
				Package: arch.Arch,
				Err:     err,
			}
		}

		if err := h.VerifyDownloaded(records, opts); err != nil {
			return err
		}
		h.metadata.Merge(records)
	}
	return nil
}

// VerifyDownloaded implements format.Handler
func (h *Handler) VerifyDownloaded(records *format.Metadata, opts format.DownloadOptions) error {
	problems := verify.Files(filesystem(opts), records.Records())
	if len(problems) > 0 && opts.Strict {
		return &models.PrefetchError{
			Type:     models.ErrFetch,
			Package:  problems[0].Path,
			Err:      fmt.Errorf("%d files failed verification, first: %s", len(problems), problems[0].Kind),
			Solution: "Regenerate the lockfile or drop --strict-verify to only warn about mismatches.",
		}
	}
	return nil
}

// plan builds the download batch of one architecture and creates the
// directories it writes into.
func plan(fs afero.Fs, outputDir rootedpath.RootedPath, arch lockfile.Arch) (download.Files, *format.Metadata, error) {
	files := download.Files{}
	records := format.NewMetadata()

	add := func(ref lockfile.PackageRef, isPackage bool, dirs ...string) error {
		if err := checkSegment("repoid", ref.RepoID); err != nil {
			return err
		}
		name, err := basename(ref.URL)
		if err != nil {
			return err
		}
		dest, err := outputDir.JoinWithinRoot(append(dirs, ref.RepoID, name)...)
		if err != nil {
			return &models.PrefetchError{
				Type:     models.ErrPackageRejected,
				Err:      err,
				Solution: "Fix the repoid and url entries of the lockfile.",
			}
		}
		if err := utils.EnsureDir(fs, filepath.Dir(dest.Path())); err != nil {
			return &models.PrefetchError{Type: models.ErrFileOp, Err: err}
		}

		if prev, ok := files[dest.Path()]; ok && prev != ref.URL {
			logrus.Warnf("%s is listed twice, %s replaces %s", dest.Subpath(), ref.URL, prev)
		}
		files[dest.Path()] = ref.URL

		record := format.FileRecord{
			Path:      dest.Path(),
			IsPackage: isPackage,
			Arch:      arch.Arch,
			RepoID:    ref.RepoID,
			SourceURL: ref.URL,
		}
		if isPackage {
			record.Size = ref.Size
			record.Checksum = ref.Checksum
		}
		records.Add(record)
		return nil
	}

	for _, ref := range arch.Packages {
		if err := add(ref, true, arch.Arch); err != nil {
			return nil, nil, err
		}
	}
	for _, ref := range arch.Sources {
		if err := add(ref, false, repo.SourcesDir, arch.Arch); err != nil {
			return nil, nil, err
		}
	}
	return files, records, nil
}

// checkSegment rejects values that would not map to exactly one
// directory of the output tree
func checkSegment(kind, value string) error {
	if value == "" || value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return models.NewPackageRejected(
			fmt.Sprintf("%s '%s' is not a plain directory name", kind, value),
			"Fix the arch and repoid entries of the lockfile.",
		)
	}
	return nil
}

// basename is the last segment of the URL path
func basename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", models.NewPackageRejected(
			fmt.Sprintf("invalid url '%s': %v", rawURL, err),
			"Fix the url entries of the lockfile.",
		)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == ".." {
		return "", models.NewPackageRejected(
			fmt.Sprintf("url '%s' does not name a file", rawURL),
			"Fix the url entries of the lockfile.",
		)
	}
	return name, nil
}

func filesystem(opts format.DownloadOptions) afero.Fs {
	if opts.Fs == nil {
		return afero.NewOsFs()
	}
	return opts.Fs
}
