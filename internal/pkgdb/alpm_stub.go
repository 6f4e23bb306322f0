//go:build !cgo

package pkgdb

import omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"

// newALPMAdapterOrFallback is the non-cgo build's stand-in: binaries built
// with CGO_ENABLED=0 have no libalpm binding available, so Open reports the
// precondition failure instead of silently degrading to the in-memory
// adapter on a real Arch host.
func newALPMAdapterOrFallback(root, dbPath string) (Adapter, error) {
	return nil, omgerrors.Internal("ALPM support requires a cgo-enabled build", nil)
}
