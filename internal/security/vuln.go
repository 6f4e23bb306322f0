package security

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PyRo1121/omg-sub002/pkg/cache"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
	"github.com/PyRo1121/omg-sub002/pkg/ratelimit"
	"github.com/PyRo1121/omg-sub002/pkg/resilience"
)

// vulnFanoutCap is the §5 "vulnerability fan-out = 32" bounded-concurrency
// guardrail for batch security-audit scans.
const vulnFanoutCap = 32

const osvEndpoint = "https://api.osv.dev/v1/query"

// CVE is the minimal vulnerability record needed here: identifier,
// summary, and severity, regardless of which ecosystem's advisory produced
// it (§4.3: "Primary source: OSV HTTP API ... fallback: distro security
// advisory feed").
type CVE struct {
	ID       string
	Summary  string
	Severity string
}

type osvQuery struct {
	Package osvPackage `json:"package"`
	Version string     `json:"version,omitempty"`
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvResponse struct {
	Vulns []osvVuln `json:"vulns"`
}

type osvVuln struct {
	ID       string            `json:"id"`
	Summary  string            `json:"summary"`
	Severity []osvVulnSeverity `json:"severity"`
}

type osvVulnSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

// DistroAdvisoryFetcher fetches the fallback security-advisory feed for a
// single package (e.g. Arch's ALSA feed); implementations are distro-
// specific and injected so this package stays distro-agnostic.
type DistroAdvisoryFetcher func(ctx context.Context, packageName, version string) ([]CVE, error)

// VulnerabilityCache is §3's VulnerabilityCache: (package-name, version) →
// (CVEs, fetched_at), TTL-expired entries refetched, backed by pkg/cache's
// generic in-process tier with an optional Redis persistent tier.
type VulnerabilityCache struct {
	ecosystem string
	client    *ratelimit.Client
	local     *cache.Cache
	redis     *cache.RedisTier
	fallback  DistroAdvisoryFetcher
	sem       chan struct{}
	breaker   *resilience.CircuitBreaker
}

// NewVulnerabilityCache wires a scanner against OSV for the given package
// ecosystem ("Arch", "Alpine", "Debian", ...), with ttl controlling cache
// freshness and an optional distro-advisory fallback. OSV queries run
// behind a dedicated circuit breaker so a degraded osv.dev falls back to
// the distro advisory feed instead of retrying into a known-down upstream.
func NewVulnerabilityCache(ecosystem string, client *ratelimit.Client, ttl time.Duration, redis *cache.RedisTier, fallback DistroAdvisoryFetcher) *VulnerabilityCache {
	return &VulnerabilityCache{
		ecosystem: ecosystem,
		client:    client,
		local:     cache.New(cache.Config{DefaultTTL: ttl}),
		redis:     redis,
		fallback:  fallback,
		sem:       make(chan struct{}, vulnFanoutCap),
		breaker:   resilience.New(resilience.DefaultConfig()),
	}
}

func cveCacheKey(name, version string) string { return name + "@" + version }

// Lookup queries the cache first, then OSV, then the distro fallback. A
// cache hit is intentionally a synchronous map read: repeat queries in the
// same session are expected to be far more than 10x faster than a network
// round trip (§4.3 testable property).
func (v *VulnerabilityCache) Lookup(ctx context.Context, name, version string) ([]CVE, error) {
	key := cveCacheKey(name, version)

	if cached, ok := v.local.Get(key); ok {
		return cached.([]CVE), nil
	}

	if v.redis != nil {
		var cves []CVE
		if v.redis.Get(ctx, key, &cves) {
			v.local.Set(key, cves, 0)
			return cves, nil
		}
	}

	cves, err := v.queryOSV(ctx, name, version)
	if err != nil {
		return nil, err
	}

	if len(cves) == 0 && v.fallback != nil {
		cves, err = v.fallback(ctx, name, version)
		if err != nil {
			return nil, err
		}
	}

	v.local.Set(key, cves, 0)
	if v.redis != nil {
		_ = v.redis.Set(ctx, key, cves, 0)
	}

	return cves, nil
}

func (v *VulnerabilityCache) queryOSV(ctx context.Context, name, version string) ([]CVE, error) {
	body, err := json.Marshal(osvQuery{
		Package: osvPackage{Name: name, Ecosystem: v.ecosystem},
		Version: version,
	})
	if err != nil {
		return nil, omgerrors.Internal("failed to encode OSV query", err)
	}

	var decoded osvResponse
	doErr := v.breaker.ExecuteWithRetry(ctx, resilience.DefaultRetryConfig(), omgerrors.Recoverable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, osvEndpoint, strings.NewReader(string(body)))
		if err != nil {
			return omgerrors.Internal("failed to build OSV request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := v.client.Do(req)
		if err != nil {
			return omgerrors.NetworkUnreachable("osv.dev", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return omgerrors.NetworkTimeout("osv.dev", nil)
		}

		decoded = osvResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return omgerrors.Internal("failed to decode OSV response", err)
		}
		return nil
	})
	if doErr != nil {
		return nil, doErr
	}

	cves := make([]CVE, 0, len(decoded.Vulns))
	for _, vuln := range decoded.Vulns {
		severity := ""
		if len(vuln.Severity) > 0 {
			severity = vuln.Severity[0].Score
		}
		cves = append(cves, CVE{ID: vuln.ID, Summary: vuln.Summary, Severity: severity})
	}
	return cves, nil
}

// BatchLookup scans many (name, version) pairs concurrently under the
// 32-concurrency cap (§4.2, §5 "DoS guard"). Returns a map keyed the same
// way as Lookup's cache key.
func (v *VulnerabilityCache) BatchLookup(ctx context.Context, pkgs map[string]string) (map[string][]CVE, error) {
	results := make(map[string][]CVE, len(pkgs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for name, version := range pkgs {
		name, version := name, version
		wg.Add(1)
		v.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-v.sem }()

			cves, err := v.Lookup(ctx, name, version)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[cveCacheKey(name, version)] = cves
		}()
	}

	wg.Wait()
	return results, firstErr
}
