package daemon

import (
	"context"
	"sync"

	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/internal/security"
)

// securityAuditCap is §4.2's "Security-audit scans over all installed
// packages use a concurrency cap of 32 for per-package vulnerability
// lookups (DoS guard)".
const securityAuditCap = 32

// PackageAuditResult is one package's line in a SecurityAudit response.
type PackageAuditResult struct {
	Name       string                  `json:"name"`
	Version    string                  `json:"version"`
	CVEs       []security.CVE          `json:"cves,omitempty"`
	Grade      string                  `json:"grade"`
	Provenance string                  `json:"provenance"`
	PolicyOK   bool                    `json:"policy_ok"`
	Violation  string                  `json:"violation,omitempty"`
}

// SecurityAuditResult is the full §4.2 SecurityAudit response payload.
type SecurityAuditResult struct {
	Scanned int                   `json:"scanned"`
	AtRisk  int                   `json:"at_risk"`
	Results []PackageAuditResult  `json:"results"`
}

// AuditRunner wires the Security Core into a daemon-scoped security
// audit over every installed package.
type AuditRunner struct {
	eng       *engine.Engine
	vulnCache *security.VulnerabilityCache
	policy    security.SecurityPolicy
}

// NewAuditRunner wires an AuditRunner against the engine and the
// already-loaded vulnerability cache / policy.
func NewAuditRunner(eng *engine.Engine, vulnCache *security.VulnerabilityCache, policy security.SecurityPolicy) *AuditRunner {
	return &AuditRunner{eng: eng, vulnCache: vulnCache, policy: policy}
}

// Run scans every installed package with a securityAuditCap-bounded
// fan-out of vulnerability lookups, grades each package's provenance,
// and evaluates it against the loaded policy.
func (ar *AuditRunner) Run(ctx context.Context) (SecurityAuditResult, error) {
	packages, err := ar.eng.LocalPackages(ctx)
	if err != nil {
		return SecurityAuditResult{}, err
	}

	results := make([]PackageAuditResult, len(packages))
	sem := make(chan struct{}, securityAuditCap)
	var wg sync.WaitGroup

	for i, p := range packages {
		wg.Add(1)
		go func(i int, p pkgdb.Package) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = ar.assess(ctx, p)
		}(i, p)
	}
	wg.Wait()

	atRisk := 0
	for _, r := range results {
		if !r.PolicyOK || len(r.CVEs) > 0 {
			atRisk++
		}
	}

	return SecurityAuditResult{Scanned: len(results), AtRisk: atRisk, Results: results}, nil
}

func (ar *AuditRunner) assess(ctx context.Context, p pkgdb.Package) PackageAuditResult {
	cves, err := ar.vulnCache.Lookup(ctx, p.Name, p.Version)
	if err != nil {
		cves = nil
	}

	provenance := security.Grade(p, false, false)

	assessment := security.PackageAssessment{
		Package:    p,
		IsAUR:      p.Repo == "aur",
		HasCVE:     len(cves) > 0,
		Provenance: provenance,
	}
	grade := security.AssessGrade(assessment)

	result := PackageAuditResult{
		Name:       p.Name,
		Version:    p.Version,
		CVEs:       cves,
		Grade:      grade.String(),
		Provenance: provenance.String(),
		PolicyOK:   true,
	}

	if err := ar.policy.Evaluate(assessment); err != nil {
		result.PolicyOK = false
		result.Violation = err.Error()
	}

	return result
}
