package rpmtool

import (
	"context"
	"os/exec"
)

// CreaterepoIndexer builds repodata in place by running createrepo_c
type CreaterepoIndexer struct {
	Binary string
}

// NewCreaterepoIndexer returns an indexer using the given binary
func NewCreaterepoIndexer(binary string) *CreaterepoIndexer {
	if binary == "" {
		binary = "createrepo_c"
	}
	return &CreaterepoIndexer{Binary: binary}
}

// Available reports whether the binary can be found
func (c *CreaterepoIndexer) Available() bool {
	_, err := exec.LookPath(c.Binary)
	return err == nil
}

// Index runs the indexer against dir
func (c *CreaterepoIndexer) Index(ctx context.Context, dir string) error {
	_, err := run(ctx, c.Binary, dir)
	return err
}
