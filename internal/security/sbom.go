package security

import (
	"encoding/json"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// SBOM is a minimal CycloneDX-shaped bill of materials (SPEC_FULL.md
// Supplemented Features: SBOM generation was part of the original purpose
// statement but had no component design of its own in the distilled
// spec). Only the fields the core can populate from a Package record are
// carried; a full CycloneDX document has many optional sections this
// intentionally omits.
type SBOM struct {
	BOMFormat  string          `json:"bomFormat"`
	SpecVersion string         `json:"specVersion"`
	Components []SBOMComponent `json:"components"`
}

// SBOMComponent mirrors CycloneDX's component schema closely enough to be
// consumed by CycloneDX-aware tooling downstream.
type SBOMComponent struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	PURL    string   `json:"purl"`
	Licenses []string `json:"licenses,omitempty"`
}

// GenerateSBOM builds a CycloneDX-shaped document for the given installed
// packages.
func GenerateSBOM(pkgs []pkgdb.Package) SBOM {
	sbom := SBOM{
		BOMFormat:   "CycloneDX",
		SpecVersion: "1.5",
		Components:  make([]SBOMComponent, 0, len(pkgs)),
	}

	for _, p := range pkgs {
		sbom.Components = append(sbom.Components, SBOMComponent{
			Type:     "library",
			Name:     p.Name,
			Version:  p.Version,
			PURL:     "pkg:" + p.Repo + "/" + p.Name + "@" + p.Version,
			Licenses: p.Licenses,
		})
	}

	return sbom
}

// MarshalSBOM renders sbom as indented, machine-diffable JSON.
func MarshalSBOM(sbom SBOM) ([]byte, error) {
	data, err := json.MarshalIndent(sbom, "", "  ")
	if err != nil {
		return nil, omgerrors.Internal("failed to marshal SBOM", err)
	}
	return data, nil
}
