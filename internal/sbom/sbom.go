// Package sbom turns downloaded rpm files into SBOM components.
package sbom

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ralt/rpmprefetch/internal/format"
	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/rpmtool"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Builder creates one Component per binary rpm
type Builder struct {
	inspector rpmtool.Inspector
	reader    rpmtool.HeaderReader
}

// NewBuilder creates a Builder backed by the given tools
func NewBuilder(inspector rpmtool.Inspector, reader rpmtool.HeaderReader) *Builder {
	return &Builder{
		inspector: inspector,
		reader:    reader,
	}
}

// Build returns the components of every binary package record. Source
// rpms never produce a component.
func (b *Builder) Build(ctx context.Context, records []format.FileRecord) ([]models.Component, error) {
	packages := lo.Filter(records, func(r format.FileRecord, _ int) bool {
		return r.IsPackage
	})
	byArch := lo.GroupBy(packages, func(r format.FileRecord) string {
		return r.Arch
	})
	arches := lo.Keys(byArch)
	sort.Strings(arches)

	components := make([]models.Component, 0, len(packages))
	for _, arch := range arches {
		archRecords := byArch[arch]
		sort.Slice(archRecords, func(i, j int) bool {
			return archRecords[i].Path < archRecords[j].Path
		})

		logrus.Infof("Generating SBOM components for %d %s packages", len(archRecords), arch)
		for _, r := range archRecords {
			c, err := b.component(ctx, r)
			if err != nil {
				return nil, &models.PrefetchError{
					Type:    models.ErrPackageParse,
					Package: r.Path,
					Err:     err,
				}
			}
			components = append(components, c)
		}
	}
	return components, nil
}

func (b *Builder) component(ctx context.Context, r format.FileRecord) (models.Component, error) {
	epoch, err := b.inspector.Query(ctx, r.Path, rpmtool.QueryEpoch)
	if err != nil {
		return models.Component{}, fmt.Errorf("failed to query epoch: %w", err)
	}
	license, err := b.inspector.Query(ctx, r.Path, rpmtool.QueryLicense)
	if err != nil {
		return models.Component{}, fmt.Errorf("failed to query license: %w", err)
	}

	h, err := b.reader.ReadHeader(r.Path)
	if err != nil {
		return models.Component{}, err
	}

	purl := PURL(*h, epoch, r.SourceURL)
	logrus.Debugf("%s: %s (license %q)", r.Path, purl, license)

	return models.Component{
		Name:    h.Name,
		Version: h.Version,
		PURL:    purl,
	}, nil
}

// PURL builds the package url of an rpm:
//
//	pkg:rpm[/<vendor>]/<name>@<version><release>?arch=<arch>[&epoch=<epoch>]&download_url=<url>
//
// The vendor is lowercased; vendor and download url are percent-encoded.
func PURL(h rpmtool.Header, epoch, downloadURL string) string {
	var b strings.Builder
	b.WriteString("pkg:rpm")
	if h.Vendor != "" {
		b.WriteString("/")
		b.WriteString(quote(strings.ToLower(h.Vendor)))
	}
	fmt.Fprintf(&b, "/%s@%s%s?arch=%s", h.Name, h.Version, h.Release, h.Arch)
	if epoch != "" {
		b.WriteString("&epoch=")
		b.WriteString(epoch)
	}
	b.WriteString("&download_url=")
	b.WriteString(quote(downloadURL))
	return b.String()
}

// quote percent-encodes everything but unreserved characters, spaces
// included.
func quote(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
