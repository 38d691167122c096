// Package verify checks downloaded files against the sizes and checksums
// declared in the lockfile.
package verify

import (
	"fmt"
	"strings"

	"github.com/ralt/rpmprefetch/internal/format"
	"github.com/ralt/rpmprefetch/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ProblemKind classifies a verification problem
type ProblemKind int

const (
	SizeMismatch ProblemKind = iota
	ChecksumMismatch
	UnsupportedAlgorithm
	Unreadable
)

func (k ProblemKind) String() string {
	switch k {
	case SizeMismatch:
		return "size mismatch"
	case ChecksumMismatch:
		return "checksum mismatch"
	case UnsupportedAlgorithm:
		return "unsupported checksum algorithm"
	case Unreadable:
		return "unreadable file"
	default:
		return "unknown"
	}
}

// Problem is one failed check
type Problem struct {
	Path   string
	Kind   ProblemKind
	Detail string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s (%s)", p.Path, p.Kind, p.Detail)
}

// Files checks every record against the file materialized at its path.
// Problems are logged as warnings and returned; none of them is an error.
// A size mismatch skips the checksum of that file.
func Files(fs afero.Fs, records []format.FileRecord) []Problem {
	var problems []Problem
	warn := func(p Problem) {
		logrus.Warnf("Verification of %s failed: %s (%s)", p.Path, p.Kind, p.Detail)
		problems = append(problems, p)
	}

	for _, r := range records {
		if r.Size == nil && r.Checksum == "" {
			continue
		}

		if r.Size != nil {
			info, err := fs.Stat(r.Path)
			if err != nil {
				warn(Problem{Path: r.Path, Kind: Unreadable, Detail: err.Error()})
				continue
			}
			if info.Size() != *r.Size {
				warn(Problem{
					Path:   r.Path,
					Kind:   SizeMismatch,
					Detail: fmt.Sprintf("expected %d bytes, got %d", *r.Size, info.Size()),
				})
				continue
			}
		}

		if r.Checksum == "" {
			continue
		}

		if p, ok := checkDigest(fs, r); !ok {
			warn(p)
			continue
		}
		logrus.Debugf("Verified %s", r.Path)
	}

	return problems
}

func checkDigest(fs afero.Fs, r format.FileRecord) (Problem, bool) {
	algorithm, expected, err := utils.SplitChecksum(r.Checksum)
	if err != nil {
		return Problem{Path: r.Path, Kind: UnsupportedAlgorithm, Detail: err.Error()}, false
	}
	if _, err := utils.NewHash(algorithm); err != nil {
		return Problem{Path: r.Path, Kind: UnsupportedAlgorithm, Detail: algorithm}, false
	}

	actual, err := utils.FileChecksum(fs, r.Path, algorithm)
	if err != nil {
		return Problem{Path: r.Path, Kind: Unreadable, Detail: err.Error()}, false
	}

	if !strings.EqualFold(actual, expected) {
		return Problem{
			Path:   r.Path,
			Kind:   ChecksumMismatch,
			Detail: fmt.Sprintf("expected %s:%s, got %s", algorithm, expected, actual),
		}, false
	}
	return Problem{}, true
}
