package pkgdb

import "os"

// Distro identifies which native backend an Open call should target.
type Distro string

const (
	DistroArch   Distro = "arch"
	DistroDebian Distro = "debian"
)

// DetectDistro inspects well-known marker files to decide which adapter to
// construct (§4.1: the adapter a deployment uses is a host property, not a
// per-request choice).
func DetectDistro() Distro {
	if _, err := os.Stat("/etc/pacman.conf"); err == nil {
		return DistroArch
	}
	if _, err := os.Stat("/etc/debian_version"); err == nil {
		return DistroDebian
	}
	return DistroArch
}

// Open constructs the adapter for distro, or a MemoryAdapter when testMode
// is set (§5 test-mode gate). root/dbPath are only consulted for Arch.
func Open(distro Distro, testMode bool, root, dbPath string) (Adapter, error) {
	if testMode {
		return NewMemoryAdapter(nil, nil), nil
	}

	switch distro {
	case DistroDebian:
		return NewDpkgAdapter(), nil
	default:
		return newALPMAdapterOrFallback(root, dbPath)
	}
}
