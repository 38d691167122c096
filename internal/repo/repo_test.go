package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingIndexer struct {
	mu     sync.Mutex
	dirs   []string
	failOn string
}

func (r *recordingIndexer) Index(_ context.Context, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && strings.HasSuffix(dir, r.failOn) {
		return errors.New("createrepo exploded")
	}
	r.dirs = append(r.dirs, dir)
	return nil
}

func tree(t *testing.T, dirs ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, d := range dirs {
		require.NoError(t, fs.MkdirAll(d, 0755))
	}
	return fs
}

func TestIndexRepositoriesSkipsSources(t *testing.T) {
	fs := tree(t,
		"/out/x86_64/b-repo",
		"/out/x86_64/a-repo",
		"/out/aarch64/a-repo",
		"/out/sources/x86_64/a-repo-source",
	)
	idx := &recordingIndexer{}

	require.NoError(t, NewMaterializer(fs, idx).IndexRepositories(context.Background(), "/out"))
	assert.Equal(t, []string{
		"/out/aarch64/a-repo",
		"/out/x86_64/a-repo",
		"/out/x86_64/b-repo",
	}, idx.dirs)
}

func TestIndexRepositoriesFailure(t *testing.T) {
	fs := tree(t, "/out/x86_64/a-repo", "/out/x86_64/b-repo")
	idx := &recordingIndexer{failOn: "b-repo"}

	err := NewMaterializer(fs, idx).IndexRepositories(context.Background(), "/out")
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrIndexing))
	assert.Contains(t, err.Error(), "x86_64/b-repo")
}

func TestGenerateRepoFiles(t *testing.T) {
	fs := tree(t,
		"/out/x86_64/b-repo",
		"/out/x86_64/a-repo",
		"/out/aarch64/only",
		"/out/sources/x86_64/a-repo-source",
	)

	files, err := NewMaterializer(fs, &recordingIndexer{}).GenerateRepoFiles("/out")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "/out/aarch64/cachi2.repo", files[0].AbsPath)
	assert.Equal(t, "[only]\nbaseurl = file:///out/aarch64/only\n\n", files[0].Template)

	want := "[a-repo]\nbaseurl = file:///out/x86_64/a-repo\n\n" +
		"[b-repo]\nbaseurl = file:///out/x86_64/b-repo\n\n"
	assert.Equal(t, "/out/x86_64/cachi2.repo", files[1].AbsPath)
	assert.Equal(t, want, files[1].Template)

	onDisk, err := afero.ReadFile(fs, "/out/x86_64/cachi2.repo")
	require.NoError(t, err)
	assert.Equal(t, want, string(onDisk))

	exists, err := afero.Exists(fs, "/out/sources/cachi2.repo")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMaterializeMissingRoot(t *testing.T) {
	_, err := NewMaterializer(afero.NewMemMapFs(), &recordingIndexer{}).Materialize(context.Background(), "/nope")
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrFileOp))
}

func TestMaterializeIndexesBeforeRepoFiles(t *testing.T) {
	fs := tree(t, "/out/x86_64/a-repo")
	idx := &recordingIndexer{}

	files, err := NewMaterializer(fs, idx).Materialize(context.Background(), "/out")
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/x86_64/a-repo"}, idx.dirs)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join("/out/x86_64", RepoFileName), files[0].AbsPath)
}

var rpmLead = append([]byte{0xED, 0xAB, 0xEE, 0xDB}, []byte("payload")...)

func fakeParser(pkgs map[string]models.Package) PackageParser {
	return func(path string) (*models.Package, error) {
		p, ok := pkgs[filepath.Base(path)]
		if !ok {
			return nil, errors.New("not an rpm")
		}
		p.Filename = path
		return &p, nil
	}
}

type fakeSigner struct{}

func (fakeSigner) SignDetached(data []byte) ([]byte, error) {
	return append([]byte("SIG:"), data[:5]...), nil
}

func (fakeSigner) GetPublicKey() ([]byte, error) {
	return []byte("PUBKEY"), nil
}

func TestNativeIndexer(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/repo/vim-9.0-1.x86_64.rpm", rpmLead, 0644))
	require.NoError(t, afero.WriteFile(fs, "/repo/bash-5.2-1.x86_64.rpm", rpmLead, 0644))

	parser := fakeParser(map[string]models.Package{
		"vim-9.0-1.x86_64.rpm": {
			Name: "vim", Epoch: "2", Version: "9.0", Release: "1", Architecture: "x86_64",
			BuildTime: 200, Requires: []string{"libc.so.6"}, Provides: []string{"vim"},
		},
		"bash-5.2-1.x86_64.rpm": {
			Name: "bash", Version: "5.2", Release: "1", Architecture: "x86_64", BuildTime: 100,
		},
	})

	for _, kind := range []string{utils.CompressGzip, utils.CompressXz, utils.CompressZstd} {
		t.Run(kind, func(t *testing.T) {
			idx := NewNativeIndexer(fs, WithParser(parser), WithCompression(kind), WithSigner(fakeSigner{}))
			require.NoError(t, idx.Index(context.Background(), "/repo"))

			matches, err := afero.Glob(fs, "/repo/repodata/*-primary.xml."+kind)
			require.NoError(t, err)
			require.Len(t, matches, 1)

			compressed, err := afero.ReadFile(fs, matches[0])
			require.NoError(t, err)
			primary, err := utils.Decompress(compressed, kind)
			require.NoError(t, err)

			doc := string(primary)
			assert.Contains(t, doc, `packages="2"`)
			assert.Contains(t, doc, `<version epoch="2" ver="9.0" rel="1"></version>`)
			assert.Contains(t, doc, `<version epoch="0" ver="5.2" rel="1"></version>`)
			assert.Contains(t, doc, `<location href="vim-9.0-1.x86_64.rpm"></location>`)
			assert.Contains(t, doc, `<rpm:entry name="libc.so.6"></rpm:entry>`)
			assert.Less(t, strings.Index(doc, "<name>bash</name>"), strings.Index(doc, "<name>vim</name>"))

			sum, err := utils.CalculateChecksum(rpmLead, "sha256")
			require.NoError(t, err)
			assert.Contains(t, doc, sum)

			repomd, err := afero.ReadFile(fs, "/repo/repodata/repomd.xml")
			require.NoError(t, err)
			openSum, err := utils.CalculateChecksum(primary, "sha256")
			require.NoError(t, err)
			assert.Contains(t, string(repomd), `<open-checksum type="sha256">`+openSum+`</open-checksum>`)
			assert.Contains(t, string(repomd), "<revision>200</revision>")
			assert.Contains(t, string(repomd), "repodata/"+filepath.Base(matches[0]))

			sig, err := afero.ReadFile(fs, "/repo/repodata/repomd.xml.asc")
			require.NoError(t, err)
			assert.Equal(t, "SIG:<?xml", string(sig))

			key, err := afero.ReadFile(fs, "/repo/repodata/repomd.xml.key")
			require.NoError(t, err)
			assert.Equal(t, "PUBKEY", string(key))
		})
	}
}

func TestNativeIndexerReindexDropsStalePrimary(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/repo/bash-5.2-1.x86_64.rpm", rpmLead, 0644))
	parser := fakeParser(map[string]models.Package{
		"bash-5.2-1.x86_64.rpm": {Name: "bash", Version: "5.2", Release: "1", Architecture: "x86_64"},
		"vim-9.0-1.x86_64.rpm":  {Name: "vim", Version: "9.0", Release: "1", Architecture: "x86_64"},
	})

	require.NoError(t, NewNativeIndexer(fs, WithParser(parser)).Index(context.Background(), "/repo"))
	first, err := afero.Glob(fs, "/repo/repodata/*-primary.xml.*")
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, afero.WriteFile(fs, "/repo/vim-9.0-1.x86_64.rpm", rpmLead, 0644))
	idx := NewNativeIndexer(fs, WithParser(parser), WithCompression(utils.CompressXz))
	require.NoError(t, idx.Index(context.Background(), "/repo"))

	second, err := afero.Glob(fs, "/repo/repodata/*-primary.xml.*")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0], second[0])

	compressed, err := afero.ReadFile(fs, second[0])
	require.NoError(t, err)
	primary, err := utils.Decompress(compressed, utils.CompressXz)
	require.NoError(t, err)
	assert.Contains(t, string(primary), `packages="2"`)
}

func TestNativeIndexerParseFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/repo/broken.rpm", rpmLead, 0644))

	err := NewNativeIndexer(fs, WithParser(fakeParser(nil))).Index(context.Background(), "/repo")
	require.Error(t, err)
	assert.True(t, models.IsType(err, models.ErrPackageParse))
}

func TestNativeIndexerEmptyRepo(t *testing.T) {
	fs := tree(t, "/repo")
	require.NoError(t, NewNativeIndexer(fs).Index(context.Background(), "/repo"))

	repomd, err := afero.ReadFile(fs, "/repo/repodata/repomd.xml")
	require.NoError(t, err)
	assert.Contains(t, string(repomd), `<data type="primary">`)

	exists, err := afero.Exists(fs, "/repo/repodata/repomd.xml.asc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepoFileContentOrder(t *testing.T) {
	repoids := []string{"b", "a"}
	sort.Strings(repoids)
	assert.Equal(t, "[a]\nbaseurl = file:///x/a\n\n[b]\nbaseurl = file:///x/b\n\n", RepoFileContent("/x", repoids))
}
