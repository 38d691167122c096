package format

import (
	"errors"
	"fmt"

	"github.com/ralt/rpmprefetch/internal/lockfile"
	"github.com/sirupsen/logrus"
)

// ErrFormatUnsupported is returned when no registered handler accepts a lockfile
var ErrFormatUnsupported = errors.New("unsupported lockfile format")

// UnsupportedError names the vendor and version nobody claimed
type UnsupportedError struct {
	Vendor  string
	Version string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%v: vendor '%s', version '%s'", ErrFormatUnsupported, e.Vendor, e.Version)
}

// Is makes errors.Is(err, ErrFormatUnsupported) work
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrFormatUnsupported
}

// Registry holds handler factories in priority order
type Registry struct {
	factories []Factory
}

// NewRegistry creates a registry with the given factories
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register appends a factory; earlier registrations win
func (r *Registry) Register(f Factory) {
	r.factories = append(r.factories, f)
}

// Resolve returns the first handler that matches content and validates it.
// A schema error from a matching handler is returned as is.
func (r *Registry) Resolve(content lockfile.Content) (Handler, error) {
	for i, factory := range r.factories {
		h := factory(content)
		if !h.MatchFormat() {
			logrus.Debugf("Lockfile format handler %d (%T) does not match", i, h)
			continue
		}

		if err := h.ProcessFormat(); err != nil {
			return nil, err
		}

		if h.IsValid() {
			logrus.Debugf("Lockfile format handled by %T", h)
			return h, nil
		}
	}

	return nil, &UnsupportedError{Vendor: content.Vendor(), Version: content.Version()}
}
