// Package rootedpath confines filesystem paths to a root directory.
package rootedpath

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrPathOutsideRoot is returned when a join would escape the root
var ErrPathOutsideRoot = errors.New("path outside root")

// RootedPath is an absolute path that is known to live under Root.
type RootedPath struct {
	root string
	path string
}

// New returns a RootedPath pointing at root itself
func New(root string) (RootedPath, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return RootedPath{}, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	return RootedPath{root: abs, path: abs}, nil
}

// Root returns the confining directory
func (p RootedPath) Root() string {
	return p.root
}

// Path returns the absolute path
func (p RootedPath) Path() string {
	return p.path
}

func (p RootedPath) String() string {
	return p.path
}

// Subpath returns the path relative to the root
func (p RootedPath) Subpath() string {
	rel, err := filepath.Rel(p.root, p.path)
	if err != nil {
		return "."
	}
	return rel
}

// JoinWithinRoot joins elem onto the path and fails if the result
// leaves the root.
func (p RootedPath) JoinWithinRoot(elem ...string) (RootedPath, error) {
	rel, err := filepath.Rel(p.root, p.path)
	if err != nil {
		return RootedPath{}, err
	}
	name := filepath.Join(append([]string{rel}, elem...)...)

	jail := afero.NewBasePathFs(afero.NewOsFs(), p.root).(*afero.BasePathFs)
	resolved, err := jail.RealPath(name)
	if err != nil || !within(p.root, resolved) {
		return RootedPath{}, fmt.Errorf("%w: %s is not under %s", ErrPathOutsideRoot, filepath.Join(elem...), p.root)
	}
	return RootedPath{root: p.root, path: resolved}, nil
}

// ReRoot returns a RootedPath at the same location whose root is the
// current path.
func (p RootedPath) ReRoot() RootedPath {
	return RootedPath{root: p.path, path: p.path}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
