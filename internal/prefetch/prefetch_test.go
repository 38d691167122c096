package prefetch

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ralt/rpmprefetch/internal/download"
	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/repo"
	"github.com/ralt/rpmprefetch/internal/rpmtool"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockfileBody = `lockfileVendor: redhat
lockfileVersion: 1
arches:
  - arch: x86_64
    packages:
      - url: https://cdn.example.com/baseos/bash-5.1-1.x86_64.rpm
        repoid: baseos
      - url: https://cdn.example.com/appstream/vim-9.0-1.x86_64.rpm
        repoid: appstream
    sources:
      - url: https://cdn.example.com/source/bash-5.1-1.src.rpm
        repoid: baseos-source
  - arch: aarch64
    packages:
      - url: https://cdn.example.com/baseos/bash-5.1-1.aarch64.rpm
        repoid: baseos
`

type fakeDownloader struct {
	fs      afero.Fs
	fetched []string
	err     error
}

func (d *fakeDownloader) Download(_ context.Context, files download.Files, _ int) error {
	if d.err != nil {
		return d.err
	}
	for dest, url := range files {
		if ok, _ := afero.Exists(d.fs, dest); ok {
			continue
		}
		d.fetched = append(d.fetched, url)
		if err := afero.WriteFile(d.fs, dest, []byte(url), 0644); err != nil {
			return err
		}
	}
	return nil
}

type fakeInspector struct{}

func (fakeInspector) Query(_ context.Context, path, queryFormat string) (string, error) {
	if queryFormat == rpmtool.QueryEpoch && strings.Contains(path, "vim") {
		return "2", nil
	}
	return "", nil
}

// headerFromName derives a header from files named name-version-release.arch.rpm
type headerFromName struct{}

func (headerFromName) ReadHeader(path string) (*rpmtool.Header, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".rpm")
	dot := strings.LastIndex(base, ".")
	parts := strings.Split(base[:dot], "-")
	if len(parts) != 3 {
		return nil, errors.New("unexpected file name")
	}
	return &rpmtool.Header{
		Name:    parts[0],
		Version: parts[1],
		Release: parts[2],
		Arch:    base[dot+1:],
		Vendor:  "Red Hat, Inc.",
	}, nil
}

type recordingIndexer struct {
	mu   sync.Mutex
	dirs []string
	err  error
}

func (r *recordingIndexer) Index(_ context.Context, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, dir)
	return r.err
}

func setup(t *testing.T, lockfile string) (models.Request, *Tools, *fakeDownloader, *recordingIndexer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if lockfile != "" {
		require.NoError(t, afero.WriteFile(fs, "/src/rpms.lock.yaml", []byte(lockfile), 0644))
	} else {
		require.NoError(t, fs.MkdirAll("/src", 0755))
	}

	req := models.DefaultRequest()
	req.SourceDir = "/src"
	req.OutputDir = "/output"

	d := &fakeDownloader{fs: fs}
	idx := &recordingIndexer{}
	return req, &Tools{
		Fs:           fs,
		Downloader:   d,
		Inspector:    fakeInspector{},
		HeaderReader: headerFromName{},
		Indexer:      idx,
	}, d, idx
}

func TestFetchRPMSource(t *testing.T) {
	req, tools, d, idx := setup(t, lockfileBody)

	out, err := FetchRPMSource(context.Background(), req, tools)
	require.NoError(t, err)

	assert.Len(t, d.fetched, 4)
	assert.Empty(t, out.EnvironmentVariables)

	require.Len(t, out.Components, 3)
	purls := make([]string, 0, len(out.Components))
	for _, c := range out.Components {
		purls = append(purls, c.PURL)
	}
	assert.Contains(t, purls,
		"pkg:rpm/red%20hat%2C%20inc./vim@9.01?arch=x86_64&epoch=2&download_url=https%3A%2F%2Fcdn.example.com%2Fappstream%2Fvim-9.0-1.x86_64.rpm")
	assert.Contains(t, purls,
		"pkg:rpm/red%20hat%2C%20inc./bash@5.11?arch=aarch64&download_url=https%3A%2F%2Fcdn.example.com%2Fbaseos%2Fbash-5.1-1.aarch64.rpm")
	for _, p := range purls {
		assert.NotContains(t, p, "src.rpm")
	}

	assert.Equal(t, []string{
		"/output/deps/rpm/aarch64/baseos",
		"/output/deps/rpm/x86_64/appstream",
		"/output/deps/rpm/x86_64/baseos",
	}, idx.dirs)

	require.Len(t, out.ProjectFiles, 2)
	assert.Equal(t, "/output/deps/rpm/aarch64/cachi2.repo", out.ProjectFiles[0].AbsPath)
	assert.Equal(t, "/output/deps/rpm/x86_64/cachi2.repo", out.ProjectFiles[1].AbsPath)
	assert.Equal(t,
		"[appstream]\nbaseurl = file:///output/deps/rpm/x86_64/appstream\n\n[baseos]\nbaseurl = file:///output/deps/rpm/x86_64/baseos\n\n",
		out.ProjectFiles[1].Template)

	exists, err := afero.Exists(tools.Fs, "/output/deps/rpm/sources/x86_64/baseos-source/bash-5.1-1.src.rpm")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFetchRPMSourceTwiceFetchesNothing(t *testing.T) {
	req, tools, d, _ := setup(t, lockfileBody)

	_, err := FetchRPMSource(context.Background(), req, tools)
	require.NoError(t, err)
	d.fetched = nil

	_, err = FetchRPMSource(context.Background(), req, tools)
	require.NoError(t, err)
	assert.Empty(t, d.fetched)
}

func TestFetchRPMSourceSizeMismatchOnlyWarns(t *testing.T) {
	req, tools, _, _ := setup(t, `lockfileVendor: redhat
lockfileVersion: 1
arches:
  - arch: x86_64
    packages:
      - url: https://cdn.example.com/baseos/bash-5.1-1.x86_64.rpm
        repoid: baseos
        size: 100
`)
	hook := test.NewGlobal()
	defer hook.Reset()

	out, err := FetchRPMSource(context.Background(), req, tools)
	require.NoError(t, err)

	require.Len(t, out.Components, 1)
	assert.Equal(t, "bash", out.Components[0].Name)
	assert.Contains(t, out.Components[0].PURL, "download_url=https%3A%2F%2Fcdn.example.com%2Fbaseos%2Fbash-5.1-1.x86_64.rpm")

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "bash-5.1-1.x86_64.rpm") {
			warned = true
		}
	}
	assert.True(t, warned, "expected a verification warning")

	req.StrictVerify = true
	require.NoError(t, tools.Fs.RemoveAll("/output"))
	_, err = FetchRPMSource(context.Background(), req, tools)
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrFetch))
}

func TestFetchRPMSourceRejections(t *testing.T) {
	tests := []struct {
		name     string
		lockfile string
		message  string
	}{
		{
			name:    "missing lockfile",
			message: "Rpm lockfile 'rpms.lock.yaml' missing, refusing to continue",
		},
		{
			name:     "missing vendor",
			lockfile: "lockfileVersion: 1\narches: []\n",
			message:  "doesn't contain a key 'lockfileVendor'",
		},
		{
			name:     "unsupported vendor",
			lockfile: "lockfileVendor: suse\nlockfileVersion: 1\narches: []\n",
			message:  "vendor 'suse' (version 1)",
		},
		{
			name:     "unsupported version",
			lockfile: "lockfileVendor: redhat\nlockfileVersion: 7\narches: []\n",
			message:  "vendor 'redhat' (version 7)",
		},
		{
			name:     "schema violation",
			lockfile: "lockfileVendor: redhat\nlockfileVersion: 1\n",
			message:  "v1.schema.json",
		},
		{
			name:     "not yaml",
			lockfile: "lockfileVendor: [oops\n",
			message:  "failed to parse rpms.lock.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, tools, d, _ := setup(t, tt.lockfile)

			_, err := FetchRPMSource(context.Background(), req, tools)
			require.Error(t, err)
			assert.True(t, models.IsType(err, models.ErrPackageRejected))
			assert.Contains(t, err.Error(), tt.message)
			assert.Contains(t, err.Error(), "Solution:")
			assert.Empty(t, d.fetched)
		})
	}
}

func TestFetchRPMSourceFetchFailure(t *testing.T) {
	req, tools, d, idx := setup(t, lockfileBody)
	d.err = errors.Join(download.ErrNotFound, errors.New("https://cdn.example.com/baseos/bash-5.1-1.x86_64.rpm"))

	_, err := FetchRPMSource(context.Background(), req, tools)
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrFetch))
	assert.ErrorIs(t, err, download.ErrNotFound)
	assert.Empty(t, idx.dirs)
}

func TestFetchRPMSourceIndexingFailure(t *testing.T) {
	req, tools, _, idx := setup(t, lockfileBody)
	idx.err = errors.New("createrepo_c: exit status 1")

	_, err := FetchRPMSource(context.Background(), req, tools)
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrIndexing))
}

func TestNewToolsIndexerSelection(t *testing.T) {
	req := models.DefaultRequest()
	req.CreaterepoPath = filepath.Join(t.TempDir(), "no-createrepo")

	tools, err := NewTools(req)
	require.NoError(t, err)
	assert.IsType(t, &repo.NativeIndexer{}, tools.Indexer)

	req.Indexer = models.IndexerNative
	tools, err = NewTools(req)
	require.NoError(t, err)
	assert.IsType(t, &repo.NativeIndexer{}, tools.Indexer)

	if path, err := exec.LookPath("true"); err == nil {
		req.Indexer = models.IndexerCreaterepo
		req.CreaterepoPath = path
		tools, err = NewTools(req)
		require.NoError(t, err)
		assert.IsType(t, &rpmtool.CreaterepoIndexer{}, tools.Indexer)
	}

	req.Indexer = "yum"
	_, err = NewTools(req)
	assert.True(t, models.IsType(err, models.ErrInvalidConfig))

	req.Indexer = models.IndexerNative
	req.GPGKeyPath = filepath.Join(t.TempDir(), "missing.asc")
	_, err = NewTools(req)
	assert.True(t, models.IsType(err, models.ErrInvalidConfig))
}
