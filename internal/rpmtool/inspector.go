package rpmtool

import (
	"context"
	"strings"
)

// Query formats used by the SBOM builder
const (
	QueryEpoch   = "%{EPOCH}"
	QueryLicense = "%{LICENSE}"
)

// rpm prints this for tags that are not set
const absentMarker = "(none)"

// Inspector answers a single query-format question about an rpm file
type Inspector interface {
	Query(ctx context.Context, path, queryFormat string) (string, error)
}

// RPMInspector runs `rpm -qp --queryformat` against package files
type RPMInspector struct {
	Binary string
}

// NewRPMInspector returns an inspector using the given rpm binary
func NewRPMInspector(binary string) *RPMInspector {
	if binary == "" {
		binary = "rpm"
	}
	return &RPMInspector{Binary: binary}
}

// Query implements Inspector. An unset tag yields "".
func (i *RPMInspector) Query(ctx context.Context, path, queryFormat string) (string, error) {
	out, err := run(ctx, i.Binary, "-qp", "--nosignature", "--nodigest", "--queryformat", queryFormat, path)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == absentMarker {
		return "", nil
	}
	return out, nil
}
