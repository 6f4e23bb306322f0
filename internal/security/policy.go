package security

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// Grade is the four-level taxonomy from §3/§4.3.
type Grade int

const (
	GradeRisk Grade = iota
	GradeCommunity
	GradeVerified
	GradeLocked
)

func (g Grade) String() string {
	switch g {
	case GradeLocked:
		return "locked"
	case GradeVerified:
		return "verified"
	case GradeCommunity:
		return "community"
	default:
		return "risk"
	}
}

// SecurityPolicy is §3's SecurityPolicy, loaded from policy.toml (§6).
type SecurityPolicy struct {
	MinimumGrade    string   `toml:"minimum_grade"`
	AllowAUR        bool     `toml:"allow_aur"`
	RequirePGP      bool     `toml:"require_pgp"`
	AllowedLicenses []string `toml:"allowed_licenses"`
	BannedPackages  []string `toml:"banned_packages"`
}

// LoadPolicy parses path as TOML; a missing file yields the permissive
// zero-value policy (minimum_grade defaults to Community when unset, via
// gradeFromString's fallback).
func LoadPolicy(path string) (SecurityPolicy, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return SecurityPolicy{}, nil
	}
	if err != nil {
		return SecurityPolicy{}, omgerrors.Internal("failed to read policy file", err)
	}

	var policy SecurityPolicy
	if err := toml.Unmarshal(data, &policy); err != nil {
		return SecurityPolicy{}, omgerrors.InvalidTOML(path, err)
	}
	return policy, nil
}

// PackageAssessment is the evidence Evaluate needs about a proposed
// package operation: whether it's from the AUR, whether a CVE is known,
// whether SLSA/PGP evidence exists, and its declared licenses.
type PackageAssessment struct {
	Package     pkgdb.Package
	IsAUR       bool
	HasCVE      bool
	HasPGP      bool
	HasChecksum bool
	Provenance  ProvenanceLevel
}

// AssessGrade applies §3/§4.3's grading rule: CVE presence is Risk
// regardless of other evidence; SLSA≥2 + PGP is Locked; PGP or checksum
// verification is Verified; everything else (including unsigned AUR
// packages) is Community.
func AssessGrade(a PackageAssessment) Grade {
	switch {
	case a.HasCVE:
		return GradeRisk
	case a.Provenance >= ProvenanceLevel2 && a.HasPGP:
		return GradeLocked
	case a.HasPGP || a.HasChecksum:
		return GradeVerified
	default:
		return GradeCommunity
	}
}

// Evaluate runs the §4.3 policy pipeline in order: (1) banned-list, (2)
// AUR-allowed gate, (3) license allow-list, (4) grade floor. It returns
// nil when the operation is permitted, or a PolicyViolation error naming
// the first rule that rejected it.
func (p SecurityPolicy) Evaluate(a PackageAssessment) error {
	for _, banned := range p.BannedPackages {
		if banned == a.Package.Name {
			return omgerrors.PolicyViolation(a.Package.Name, "package is on the banned list")
		}
	}

	if a.IsAUR && !p.AllowAUR {
		return omgerrors.PolicyViolation(a.Package.Name, "AUR packages are not allowed by policy")
	}

	if len(p.AllowedLicenses) > 0 {
		if !anyLicenseAllowed(a.Package.Licenses, p.AllowedLicenses) {
			return omgerrors.PolicyViolation(a.Package.Name, "package license is not in the allow-list")
		}
	}

	grade := AssessGrade(a)
	minimum := gradeFromString(p.MinimumGrade)
	if grade < minimum {
		return omgerrors.PolicyViolation(a.Package.Name, "package grade "+grade.String()+" is below the required minimum "+minimum.String())
	}

	return nil
}

func anyLicenseAllowed(declared, allowed []string) bool {
	if len(declared) == 0 {
		return false // unknown license with a non-empty allow-list is rejected (§4.3)
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, l := range allowed {
		allowedSet[l] = true
	}
	for _, l := range declared {
		if allowedSet[l] {
			return true
		}
	}
	return false
}

func gradeFromString(s string) Grade {
	switch s {
	case "locked":
		return GradeLocked
	case "verified":
		return GradeVerified
	case "risk":
		return GradeRisk
	default:
		return GradeCommunity
	}
}
