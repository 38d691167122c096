package rpmtool

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ralt/rpmprefetch/internal/models"
	"github.com/sassoftware/go-rpmutils"
)

// Header is the subset of the rpm header used to identify a package
type Header struct {
	Name    string
	Version string
	Release string
	Arch    string
	Vendor  string
}

// HeaderReader reads the embedded header of an rpm file
type HeaderReader interface {
	ReadHeader(path string) (*Header, error)
}

// RpmutilsReader implements HeaderReader with go-rpmutils
type RpmutilsReader struct{}

// ReadHeader implements HeaderReader
func (RpmutilsReader) ReadHeader(path string) (*Header, error) {
	rpm, err := readRpm(path)
	if err != nil {
		return nil, err
	}
	return &Header{
		Name:    getStringTag(rpm, rpmutils.NAME),
		Version: getStringTag(rpm, rpmutils.VERSION),
		Release: getStringTag(rpm, rpmutils.RELEASE),
		Arch:    getStringTag(rpm, rpmutils.ARCH),
		Vendor:  getStringTag(rpm, rpmutils.VENDOR),
	}, nil
}

// ParsePackage parses an RPM file and extracts the metadata needed to index it
func ParsePackage(path string) (*models.Package, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	rpm, err := readRpm(path)
	if err != nil {
		return nil, err
	}

	epoch := ""
	if e, ok := getIntTag(rpm, rpmutils.EPOCH); ok {
		epoch = strconv.FormatInt(e, 10)
	}
	buildTime, _ := getIntTag(rpm, rpmutils.BUILDTIME)

	return &models.Package{
		Name:         getStringTag(rpm, rpmutils.NAME),
		Epoch:        epoch,
		Version:      getStringTag(rpm, rpmutils.VERSION),
		Release:      getStringTag(rpm, rpmutils.RELEASE),
		Architecture: packageArch(rpm),
		Summary:      getStringTag(rpm, rpmutils.SUMMARY),
		Description:  getStringTag(rpm, rpmutils.DESCRIPTION),
		Packager:     getStringTag(rpm, rpmutils.PACKAGER),
		Vendor:       getStringTag(rpm, rpmutils.VENDOR),
		Homepage:     getStringTag(rpm, rpmutils.URL),
		License:      getStringTag(rpm, rpmutils.LICENSE),
		Group:        getStringTag(rpm, rpmutils.GROUP),
		SourceRPM:    getStringTag(rpm, rpmutils.SOURCERPM),
		BuildTime:    buildTime,
		Requires:     getStringSliceTag(rpm, rpmutils.REQUIRENAME),
		Provides:     getStringSliceTag(rpm, rpmutils.PROVIDENAME),
		Filename:     path,
		Size:         info.Size(),
	}, nil
}

func readRpm(path string) (*rpmutils.Rpm, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM %s: %w", path, err)
	}
	return rpm, nil
}

// packageArch reports "src" for source rpms, which carry the build arch
// in their ARCH tag.
func packageArch(rpm *rpmutils.Rpm) string {
	if getStringTag(rpm, rpmutils.SOURCERPM) == "" {
		return "src"
	}
	return getStringTag(rpm, rpmutils.ARCH)
}

// getStringTag safely gets a string tag from RPM
func getStringTag(rpm *rpmutils.Rpm, tag int) string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return ""
	}

	switch v := val.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	default:
		return fmt.Sprintf("%v", v)
	}

	return ""
}

// getIntTag safely gets an integer tag from RPM; ok is false when the
// tag is absent.
func getIntTag(rpm *rpmutils.Rpm, tag int) (int64, bool) {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case []int:
		if len(v) > 0 {
			return int64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return int64(v[0]), true
		}
	case []int64:
		if len(v) > 0 {
			return v[0], true
		}
	case []uint32:
		if len(v) > 0 {
			return int64(v[0]), true
		}
	case []uint64:
		if len(v) > 0 {
			return int64(v[0]), true
		}
	}
	return 0, false
}

// getStringSliceTag safely gets a string slice tag from RPM
func getStringSliceTag(rpm *rpmutils.Rpm, tag int) []string {
	val, err := rpm.Header.Get(tag)
	if err != nil {
		return nil
	}
	if slice, ok := val.([]string); ok {
		var result []string
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}
