package repo

import (
	"context"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/ralt/rpmprefetch/internal/rpmtool"
	"github.com/ralt/rpmprefetch/internal/scanner"
	"github.com/ralt/rpmprefetch/internal/signer"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// PackageParser extracts index metadata from an rpm file
type PackageParser func(path string) (*models.Package, error)

// NativeIndexer writes repodata/primary.xml and repodata/repomd.xml for a
// directory of rpms without calling out to createrepo_c.
type NativeIndexer struct {
	fs           afero.Fs
	parse        PackageParser
	signer       signer.Signer
	compressType string
}

// NativeOption configures a NativeIndexer
type NativeOption func(*NativeIndexer)

// WithSigner signs repomd.xml and exports the public key next to it
func WithSigner(s signer.Signer) NativeOption {
	return func(n *NativeIndexer) {
		n.signer = s
	}
}

// WithCompression selects gz, xz or zst for primary.xml
func WithCompression(compressType string) NativeOption {
	return func(n *NativeIndexer) {
		n.compressType = compressType
	}
}

// WithParser replaces the rpm header parser
func WithParser(p PackageParser) NativeOption {
	return func(n *NativeIndexer) {
		n.parse = p
	}
}

// NewNativeIndexer creates a NativeIndexer. The default parser reads rpm
// headers from the OS filesystem, so fs should be backed by it.
func NewNativeIndexer(fs afero.Fs, opts ...NativeOption) *NativeIndexer {
	n := &NativeIndexer{
		fs:           fs,
		parse:        rpmtool.ParsePackage,
		compressType: utils.CompressGzip,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Index implements Indexer
func (n *NativeIndexer) Index(ctx context.Context, dir string) error {
	scanned, err := scanner.NewFileSystemScanner(n.fs).Scan(ctx, dir)
	if err != nil {
		return err
	}

	packages := make([]models.Package, 0, len(scanned))
	for _, s := range scanned {
		pkg, err := n.parse(s.Path)
		if err != nil {
			return &models.PrefetchError{
				Type:    models.ErrPackageParse,
				Package: s.Path,
				Err:     err,
			}
		}
		sum, err := utils.FileChecksum(n.fs, s.Path, "sha256")
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", s.Path, err)
		}
		pkg.SHA256Sum = sum
		pkg.Location = s.Rel
		pkg.Size = s.Size
		packages = append(packages, *pkg)
	}

	if err := ValidatePackages(packages); err != nil {
		return err
	}
	for _, dup := range utils.DetectConflicts(packages) {
		logrus.Warnf("%s provides %s a second time", dup.Location, utils.PackageIdentity(dup))
	}

	return n.writeRepodata(dir, packages)
}

// removeStalePrimary deletes primary metadata left by an earlier index
// of dir, keeping only keep
func (n *NativeIndexer) removeStalePrimary(repodataDir, keep string) error {
	old, err := afero.Glob(n.fs, filepath.Join(repodataDir, "*-primary.xml.*"))
	if err != nil {
		return err
	}
	for _, path := range old {
		if filepath.Base(path) == keep {
			continue
		}
		logrus.Debugf("Removing stale %s", path)
		if err := n.fs.Remove(path); err != nil {
			return fmt.Errorf("failed to remove stale metadata: %w", err)
		}
	}
	return nil
}

// ValidatePackages checks if packages can be indexed
func ValidatePackages(packages []models.Package) error {
	for _, pkg := range packages {
		if pkg.Name == "" {
			return fmt.Errorf("package missing name: %s", pkg.Filename)
		}
	}
	return nil
}

func (n *NativeIndexer) writeRepodata(dir string, packages []models.Package) error {
	repodataDir := filepath.Join(dir, "repodata")
	if err := utils.EnsureDir(n.fs, repodataDir); err != nil {
		return err
	}

	primaryXML, err := generatePrimaryXML(packages)
	if err != nil {
		return fmt.Errorf("failed to generate primary.xml: %w", err)
	}

	compressed, err := utils.Compress(primaryXML, n.compressType)
	if err != nil {
		return fmt.Errorf("failed to compress primary.xml: %w", err)
	}

	checksum, err := utils.CalculateChecksum(compressed, "sha256")
	if err != nil {
		return err
	}
	openChecksum, err := utils.CalculateChecksum(primaryXML, "sha256")
	if err != nil {
		return err
	}

	primaryHref := fmt.Sprintf("repodata/%s-primary.xml.%s", checksum, n.extension())
	if err := n.removeStalePrimary(repodataDir, filepath.Base(primaryHref)); err != nil {
		return err
	}
	if err := utils.WriteFile(n.fs, filepath.Join(dir, primaryHref), compressed, 0644); err != nil {
		return fmt.Errorf("failed to write primary metadata: %w", err)
	}

	repomdXML, err := generateRepomdXML(primaryEntry{
		href:         primaryHref,
		checksum:     checksum,
		openChecksum: openChecksum,
		size:         int64(len(compressed)),
		openSize:     int64(len(primaryXML)),
		timestamp:    revision(packages),
	})
	if err != nil {
		return fmt.Errorf("failed to generate repomd.xml: %w", err)
	}

	repomdPath := filepath.Join(repodataDir, "repomd.xml")
	if err := utils.WriteFile(n.fs, repomdPath, repomdXML, 0644); err != nil {
		return fmt.Errorf("failed to write repomd.xml: %w", err)
	}

	if n.signer != nil {
		signature, err := n.signer.SignDetached(repomdXML)
		if err != nil {
			return fmt.Errorf("failed to sign repomd.xml: %w", err)
		}
		if err := utils.WriteFile(n.fs, repomdPath+".asc", signature, 0644); err != nil {
			return fmt.Errorf("failed to write repomd.xml.asc: %w", err)
		}

		pubKey, err := n.signer.GetPublicKey()
		if err != nil {
			return fmt.Errorf("failed to export public key: %w", err)
		}
		if err := utils.WriteFile(n.fs, repomdPath+".key", pubKey, 0644); err != nil {
			return fmt.Errorf("failed to write repomd.xml.key: %w", err)
		}
	}

	logrus.Infof("Generated repository metadata for %s (%d packages)", dir, len(packages))
	return nil
}

func (n *NativeIndexer) extension() string {
	if n.compressType == "" {
		return utils.CompressGzip
	}
	return n.compressType
}

// revision is the newest build time, which keeps repomd.xml reproducible
func revision(packages []models.Package) int64 {
	var latest int64
	for _, p := range packages {
		if p.BuildTime > latest {
			latest = p.BuildTime
		}
	}
	return latest
}

// XML structures for metadata

type metadata struct {
	XMLName       xml.Name `xml:"metadata"`
	Xmlns         string   `xml:"xmlns,attr"`
	XmlnsRpm      string   `xml:"xmlns:rpm,attr"`
	PackagesCount int      `xml:"packages,attr"`
	Packages      []xmlPkg `xml:"package"`
}

type xmlPkg struct {
	Type        string      `xml:"type,attr"`
	Name        string      `xml:"name"`
	Arch        string      `xml:"arch"`
	Version     xmlVersion  `xml:"version"`
	Checksum    xmlChecksum `xml:"checksum"`
	Summary     string      `xml:"summary"`
	Description string      `xml:"description"`
	Packager    string      `xml:"packager"`
	URL         string      `xml:"url"`
	Time        xmlTime     `xml:"time"`
	Size        xmlSize     `xml:"size"`
	Location    xmlLocation `xml:"location"`
	Format      xmlFormat   `xml:"format"`
}

type xmlVersion struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type xmlChecksum struct {
	Type  string `xml:"type,attr"`
	Pkgid string `xml:"pkgid,attr"`
	Value string `xml:",chardata"`
}

type xmlTime struct {
	File  int64 `xml:"file,attr"`
	Build int64 `xml:"build,attr"`
}

type xmlSize struct {
	Package int64 `xml:"package,attr"`
}

type xmlLocation struct {
	Href string `xml:"href,attr"`
}

type xmlFormat struct {
	License   string      `xml:"rpm:license"`
	Vendor    string      `xml:"rpm:vendor"`
	Group     string      `xml:"rpm:group"`
	SourceRPM string      `xml:"rpm:sourcerpm"`
	Provides  *xmlEntries `xml:"rpm:provides,omitempty"`
	Requires  *xmlEntries `xml:"rpm:requires,omitempty"`
}

type xmlEntries struct {
	Entries []xmlEntry `xml:"rpm:entry"`
}

type xmlEntry struct {
	Name string `xml:"name,attr"`
}

func entries(names []string) *xmlEntries {
	if len(names) == 0 {
		return nil
	}
	e := &xmlEntries{}
	for _, name := range names {
		e.Entries = append(e.Entries, xmlEntry{Name: name})
	}
	return e
}

func generatePrimaryXML(packages []models.Package) ([]byte, error) {
	sorted := make([]models.Package, len(packages))
	copy(sorted, packages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Location < sorted[j].Location
	})

	xmlPackages := make([]xmlPkg, 0, len(sorted))
	for _, pkg := range sorted {
		epoch := pkg.Epoch
		if epoch == "" {
			epoch = "0"
		}

		xmlPackages = append(xmlPackages, xmlPkg{
			Type: "rpm",
			Name: pkg.Name,
			Arch: pkg.Architecture,
			Version: xmlVersion{
				Epoch: epoch,
				Ver:   pkg.Version,
				Rel:   pkg.Release,
			},
			Checksum: xmlChecksum{
				Type:  "sha256",
				Pkgid: "YES",
				Value: pkg.SHA256Sum,
			},
			Summary:     pkg.Summary,
			Description: pkg.Description,
			Packager:    pkg.Packager,
			URL:         pkg.Homepage,
			Time: xmlTime{
				File:  pkg.BuildTime,
				Build: pkg.BuildTime,
			},
			Size: xmlSize{
				Package: pkg.Size,
			},
			Location: xmlLocation{
				Href: pkg.Location,
			},
			Format: xmlFormat{
				License:   pkg.License,
				Vendor:    pkg.Vendor,
				Group:     pkg.Group,
				SourceRPM: pkg.SourceRPM,
				Provides:  entries(pkg.Provides),
				Requires:  entries(pkg.Requires),
			},
		})
	}

	meta := metadata{
		Xmlns:         "http://linux.duke.edu/metadata/common",
		XmlnsRpm:      "http://linux.duke.edu/metadata/rpm",
		PackagesCount: len(xmlPackages),
		Packages:      xmlPackages,
	}

	xmlBytes, err := xml.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}

type repomd struct {
	XMLName  xml.Name     `xml:"repomd"`
	Xmlns    string       `xml:"xmlns,attr"`
	XmlnsRpm string       `xml:"xmlns:rpm,attr"`
	Revision int64        `xml:"revision"`
	Data     []repomdData `xml:"data"`
}

type repomdData struct {
	Type         string         `xml:"type,attr"`
	Checksum     repomdChecksum `xml:"checksum"`
	OpenChecksum repomdChecksum `xml:"open-checksum"`
	Location     repomdLocation `xml:"location"`
	Timestamp    int64          `xml:"timestamp"`
	Size         int64          `xml:"size"`
	OpenSize     int64          `xml:"open-size"`
}

type repomdChecksum struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type repomdLocation struct {
	Href string `xml:"href,attr"`
}

type primaryEntry struct {
	href         string
	checksum     string
	openChecksum string
	size         int64
	openSize     int64
	timestamp    int64
}

func generateRepomdXML(primary primaryEntry) ([]byte, error) {
	doc := repomd{
		Xmlns:    "http://linux.duke.edu/metadata/repo",
		XmlnsRpm: "http://linux.duke.edu/metadata/rpm",
		Revision: primary.timestamp,
		Data: []repomdData{
			{
				Type: "primary",
				Checksum: repomdChecksum{
					Type:  "sha256",
					Value: primary.checksum,
				},
				OpenChecksum: repomdChecksum{
					Type:  "sha256",
					Value: primary.openChecksum,
				},
				Location: repomdLocation{
					Href: primary.href,
				},
				Timestamp: primary.timestamp,
				Size:      primary.size,
				OpenSize:  primary.openSize,
			},
		},
	}

	xmlBytes, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}
