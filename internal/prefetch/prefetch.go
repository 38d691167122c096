// Package prefetch runs a complete rpm prefetch: lockfile dispatch,
// download and verification, SBOM generation and repository creation.
package prefetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ralt/rpmprefetch/internal/download"
	"github.com/ralt/rpmprefetch/internal/format"
	"github.com/ralt/rpmprefetch/internal/format/redhat"
	"github.com/ralt/rpmprefetch/internal/lockfile"
	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/repo"
	"github.com/ralt/rpmprefetch/internal/rootedpath"
	"github.com/ralt/rpmprefetch/internal/rpmtool"
	"github.com/ralt/rpmprefetch/internal/sbom"
	"github.com/ralt/rpmprefetch/internal/signer"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Tools are the collaborators a run talks to
type Tools struct {
	Fs           afero.Fs
	Downloader   download.Downloader
	Inspector    rpmtool.Inspector
	HeaderReader rpmtool.HeaderReader
	Indexer      repo.Indexer
}

// NewTools wires the real downloader, rpm tools and indexer for req
func NewTools(req models.Request) (*Tools, error) {
	fs := afero.NewOsFs()

	indexer, err := newIndexer(req, fs)
	if err != nil {
		return nil, err
	}

	return &Tools{
		Fs: fs,
		Downloader: download.NewHTTPDownloader(
			download.WithFs(fs),
			download.WithRetries(req.Retries),
			download.WithRateLimit(req.RequestsPerSecond),
		),
		Inspector:    rpmtool.NewRPMInspector(req.RPMPath),
		HeaderReader: rpmtool.RpmutilsReader{},
		Indexer:      indexer,
	}, nil
}

func newIndexer(req models.Request, fs afero.Fs) (repo.Indexer, error) {
	switch req.Indexer {
	case models.IndexerCreaterepo, "":
		createrepo := rpmtool.NewCreaterepoIndexer(req.CreaterepoPath)
		if createrepo.Available() {
			return createrepo, nil
		}
		logrus.Warnf("%s not found, falling back to the native indexer", createrepo.Binary)
	case models.IndexerNative:
	default:
		return nil, &models.PrefetchError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("unknown indexer %q", req.Indexer),
		}
	}

	opts := []repo.NativeOption{repo.WithCompression(req.CompressType)}
	if req.GPGKeyPath != "" {
		s, err := signer.NewGPGSigner(req.GPGKeyPath, req.GPGPassphrase)
		if err != nil {
			return nil, &models.PrefetchError{
				Type: models.ErrInvalidConfig,
				Err:  fmt.Errorf("failed to initialize GPG signer: %w", err),
			}
		}
		logrus.Infof("GPG signer initialized with key %s", s.KeyID())
		opts = append(opts, repo.WithSigner(s))
	}
	return repo.NewNativeIndexer(fs, opts...), nil
}

// FetchRPMSource prefetches every rpm of the lockfile in req.SourceDir
// into req.OutputDir/deps/rpm.
func FetchRPMSource(ctx context.Context, req models.Request, tools *Tools) (*models.RequestOutput, error) {
	content, err := loadLockfile(tools.Fs, req.SourceDir)
	if err != nil {
		return nil, err
	}

	handler, err := format.NewRegistry(redhat.New).Resolve(content)
	if err != nil {
		var unsupported *format.UnsupportedError
		if errors.As(err, &unsupported) {
			return nil, models.NewPackageRejected(
				fmt.Sprintf("Rpm lockfile '%s' contains a data of vendor '%s' (version %s). A parser for that hasn't been implemented yet",
					lockfile.DefaultName, unsupported.Vendor, unsupported.Version),
				"Use the proper vendor format of the lockfile.",
			)
		}
		return nil, err
	}

	outputDir, err := rpmOutputDir(tools.Fs, req.OutputDir)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Downloading rpms into %s", outputDir)
	opts := format.DownloadOptions{
		Downloader:  tools.Downloader,
		Fs:          tools.Fs,
		Concurrency: req.Concurrency,
		Strict:      req.StrictVerify,
	}
	if err := handler.Download(ctx, outputDir, opts); err != nil {
		return nil, err
	}

	components, err := sbom.NewBuilder(tools.Inspector, tools.HeaderReader).Build(ctx, handler.Metadata().Records())
	if err != nil {
		return nil, err
	}

	projectFiles, err := repo.NewMaterializer(tools.Fs, tools.Indexer).Materialize(ctx, outputDir.Path())
	if err != nil {
		return nil, err
	}

	logrus.Infof("Prefetched %d rpm packages", len(components))
	return models.NewRequestOutput(components, environmentVariables(), projectFiles), nil
}

func loadLockfile(fs afero.Fs, sourceDir string) (lockfile.Content, error) {
	source, err := rootedpath.New(sourceDir)
	if err != nil {
		return nil, &models.PrefetchError{Type: models.ErrInvalidConfig, Err: err}
	}
	path, err := source.JoinWithinRoot(lockfile.DefaultName)
	if err != nil {
		return nil, &models.PrefetchError{Type: models.ErrInvalidConfig, Err: err}
	}

	exists, err := afero.Exists(fs, path.Path())
	if err != nil {
		return nil, &models.PrefetchError{Type: models.ErrFileOp, Err: err}
	}
	if !exists {
		return nil, models.NewPackageRejected(
			fmt.Sprintf("Rpm lockfile '%s' missing, refusing to continue", lockfile.DefaultName),
			"Make sure your repository has a rpm lockfile (e.g. rpms.lock.yaml) checked in to the repository",
		)
	}
	logrus.Debugf("Reading lockfile %s", path)

	data, err := afero.ReadFile(fs, path.Path())
	if err != nil {
		return nil, &models.PrefetchError{Type: models.ErrFileOp, Err: err}
	}
	content, err := lockfile.Decode(data)
	if err != nil {
		return nil, &models.PrefetchError{
			Type:     models.ErrPackageRejected,
			Err:      fmt.Errorf("failed to parse %s: %w", lockfile.DefaultName, err),
			Solution: "Make sure the lockfile is a valid YAML mapping.",
		}
	}

	if content.Vendor() == "" {
		return nil, models.NewPackageRejected(
			fmt.Sprintf("Rpm lockfile '%s' doesn't contain a key 'lockfileVendor' or this key is empty.", lockfile.DefaultName),
			"Set 'lockfileVendor' key in the lockfile.",
		)
	}
	return content, nil
}

// rpmOutputDir creates <outputDir>/deps/rpm and roots it at itself
func rpmOutputDir(fs afero.Fs, outputDir string) (rootedpath.RootedPath, error) {
	root, err := rootedpath.New(outputDir)
	if err != nil {
		return rootedpath.RootedPath{}, &models.PrefetchError{Type: models.ErrInvalidConfig, Err: err}
	}
	dir, err := root.JoinWithinRoot("deps", "rpm")
	if err != nil {
		return rootedpath.RootedPath{}, &models.PrefetchError{Type: models.ErrInvalidConfig, Err: err}
	}
	if err := utils.EnsureDir(fs, dir.Path()); err != nil {
		return rootedpath.RootedPath{}, &models.PrefetchError{
			Type: models.ErrFileOp,
			Err:  fmt.Errorf("failed to create %s: %w", dir, err),
		}
	}
	return dir.ReRoot(), nil
}

// environmentVariables is always empty for rpm
func environmentVariables() []models.EnvironmentVariable {
	return []models.EnvironmentVariable{}
}
