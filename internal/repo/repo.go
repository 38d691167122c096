// Package repo turns the downloaded rpm tree into installable repositories.
package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// SourcesDir holds source rpms and is never turned into a repository
const SourcesDir = "sources"

// RepoFileName is the name of the per-architecture repository config
const RepoFileName = "cachi2.repo"

// Indexer creates repository metadata for a directory of rpms, in place
type Indexer interface {
	Index(ctx context.Context, dir string) error
}

// Materializer indexes <arch>/<repoid> directories and writes the repo
// config of each architecture.
type Materializer struct {
	fs      afero.Fs
	indexer Indexer
}

// NewMaterializer creates a Materializer working on fs
func NewMaterializer(fs afero.Fs, indexer Indexer) *Materializer {
	return &Materializer{
		fs:      fs,
		indexer: indexer,
	}
}

// Materialize runs the indexing pass and then the repo file pass over root
func (m *Materializer) Materialize(ctx context.Context, root string) ([]models.ProjectFile, error) {
	if err := m.IndexRepositories(ctx, root); err != nil {
		return nil, err
	}
	return m.GenerateRepoFiles(root)
}

// IndexRepositories runs the indexer on every <arch>/<repoid> directory
// under root. Any indexer failure aborts the pass.
func (m *Materializer) IndexRepositories(ctx context.Context, root string) error {
	layout, err := m.layout(root)
	if err != nil {
		return err
	}

	for _, arch := range layout.arches {
		for _, repoid := range layout.repoids[arch] {
			dir := filepath.Join(root, arch, repoid)
			logrus.Infof("Creating repository metadata for %s/%s", arch, repoid)
			if err := m.indexer.Index(ctx, dir); err != nil {
				return &models.PrefetchError{
					Type:    models.ErrIndexing,
					Package: arch + "/" + repoid,
					Err:     err,
				}
			}
		}
	}
	return nil
}

// GenerateRepoFiles writes <root>/<arch>/cachi2.repo for every
// architecture, one stanza per repoid in sorted order, and returns them
// as project files.
func (m *Materializer) GenerateRepoFiles(root string) ([]models.ProjectFile, error) {
	layout, err := m.layout(root)
	if err != nil {
		return nil, err
	}

	var files []models.ProjectFile
	for _, arch := range layout.arches {
		archDir := filepath.Join(root, arch)
		content := RepoFileContent(archDir, layout.repoids[arch])

		path := filepath.Join(archDir, RepoFileName)
		if err := utils.WriteFile(m.fs, path, []byte(content), 0644); err != nil {
			return nil, &models.PrefetchError{
				Type: models.ErrFileOp,
				Err:  fmt.Errorf("failed to write %s: %w", path, err),
			}
		}
		logrus.Infof("Repository configuration file written to: %s", path)

		files = append(files, models.ProjectFile{
			AbsPath:  path,
			Template: content,
		})
	}
	return files, nil
}

// RepoFileContent renders the stanzas of one architecture directory
func RepoFileContent(archDir string, repoids []string) string {
	var b strings.Builder
	for _, repoid := range repoids {
		fmt.Fprintf(&b, "[%s]\n", repoid)
		fmt.Fprintf(&b, "baseurl = file://%s\n", filepath.ToSlash(filepath.Join(archDir, repoid)))
		b.WriteString("\n")
	}
	return b.String()
}

type layout struct {
	arches  []string
	repoids map[string][]string
}

// layout lists arch and repoid directories under root, skipping sources
func (m *Materializer) layout(root string) (*layout, error) {
	arches, err := utils.SubDirs(m.fs, root)
	if err != nil {
		return nil, &models.PrefetchError{
			Type: models.ErrFileOp,
			Err:  fmt.Errorf("failed to list %s: %w", root, err),
		}
	}
	arches = lo.Without(arches, SourcesDir)

	l := &layout{arches: arches, repoids: make(map[string][]string, len(arches))}
	for _, arch := range arches {
		repoids, err := utils.SubDirs(m.fs, filepath.Join(root, arch))
		if err != nil {
			return nil, &models.PrefetchError{
				Type: models.ErrFileOp,
				Err:  fmt.Errorf("failed to list %s: %w", arch, err),
			}
		}
		l.repoids[arch] = repoids
	}
	return l, nil
}
