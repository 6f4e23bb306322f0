package security

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
	"github.com/PyRo1121/omg-sub002/pkg/ratelimit"
	"github.com/PyRo1121/omg-sub002/pkg/resilience"
)

// ProvenanceLevel is the SLSA level an artifact is assigned (§4.3).
type ProvenanceLevel int

const (
	ProvenanceNone ProvenanceLevel = iota
	ProvenanceLevel1
	ProvenanceLevel2
	ProvenanceLevel3
)

func (l ProvenanceLevel) String() string {
	switch l {
	case ProvenanceLevel3:
		return "3"
	case ProvenanceLevel2:
		return "2"
	case ProvenanceLevel1:
		return "1"
	default:
		return "none"
	}
}

const rekorSearchPath = "/api/v1/index/retrieve"

// SLSAVerifier checks artifact provenance against the public Rekor
// transparency log (§4.3 SLSA verification).
type SLSAVerifier struct {
	client   *ratelimit.Client
	rekorURL string
	breaker  *resilience.CircuitBreaker
}

// NewSLSAVerifier wires a verifier against Rekor's public instance (or a
// test double, via rekorURL). Rekor calls run behind a circuit breaker so a
// down transparency log degrades provenance grading to the local-repo
// policy floor in Grade rather than stalling every lookup on retries.
func NewSLSAVerifier(client *ratelimit.Client, rekorURL string) *SLSAVerifier {
	if rekorURL == "" {
		rekorURL = "https://rekor.sigstore.dev"
	}
	return &SLSAVerifier{client: client, rekorURL: rekorURL, breaker: resilience.New(resilience.DefaultConfig())}
}

// ArtifactHash computes the SHA-256 hex digest of an artifact's bytes.
func ArtifactHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type rekorIndexRequest struct {
	Hash string `json:"hash"`
}

// Lookup queries Rekor's index by artifact hash. A non-empty entry list
// means the artifact is attested to at least Level 2 (§4.3: "inclusion in
// a public log").
func (v *SLSAVerifier) Lookup(ctx context.Context, artifactHash string) ([]string, error) {
	body, err := json.Marshal(rekorIndexRequest{Hash: "sha256:" + artifactHash})
	if err != nil {
		return nil, omgerrors.Internal("failed to encode rekor request", err)
	}

	var uuids []string
	var notFound bool
	doErr := v.breaker.ExecuteWithRetry(ctx, resilience.DefaultRetryConfig(), omgerrors.Recoverable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.rekorURL+rekorSearchPath, strings.NewReader(string(body)))
		if err != nil {
			return omgerrors.Internal("failed to build rekor request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := v.client.Do(req)
		if err != nil {
			return omgerrors.NetworkUnreachable("rekor", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			notFound = true
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return omgerrors.NetworkUnreachable("rekor", fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		uuids = nil
		if err := json.NewDecoder(resp.Body).Decode(&uuids); err != nil {
			return omgerrors.Internal("failed to decode rekor response", err)
		}
		return nil
	})
	if doErr != nil {
		return nil, doErr
	}
	if notFound {
		return nil, nil
	}
	return uuids, nil
}

// Grade assigns a ProvenanceLevel (§4.3): core system packages from the
// official repo are Level 3 by policy, other official-repo packages
// Level 2, and AUR/unknown None — unless a transparency-log hit or local
// attestation raises that floor.
func Grade(pkg pkgdb.Package, rekorHit bool, hasLocalAttestation bool) ProvenanceLevel {
	switch {
	case rekorHit:
		return ProvenanceLevel2
	case hasLocalAttestation:
		return ProvenanceLevel1
	case isCoreRepo(pkg.Repo):
		return ProvenanceLevel3
	case isOfficialRepo(pkg.Repo):
		return ProvenanceLevel2
	default:
		return ProvenanceNone
	}
}

// EntryIntegratedTime fetches one Rekor log entry by uuid and returns its
// integratedTime field, the cheap signal Grade's rekorHit path needs,
// without fully unmarshaling the surrounding entry envelope (§4.3: log
// entry bodies carry a base64 "body" blob plus top-level metadata fields
// that differ per entry kind, so a full struct would need one variant per
// kind). gjson pulls the one field out directly.
func (v *SLSAVerifier) EntryIntegratedTime(ctx context.Context, uuid string) (int64, error) {
	var data []byte
	doErr := v.breaker.ExecuteWithRetry(ctx, resilience.DefaultRetryConfig(), omgerrors.Recoverable, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.rekorURL+"/api/v1/log/entries/"+uuid, nil)
		if err != nil {
			return omgerrors.Internal("failed to build rekor entry request", err)
		}

		resp, err := v.client.Do(req)
		if err != nil {
			return omgerrors.NetworkUnreachable("rekor", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return omgerrors.NetworkUnreachable("rekor", fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return omgerrors.Internal("failed to read rekor entry body", err)
		}
		data = body
		return nil
	})
	if doErr != nil {
		return 0, doErr
	}

	result := gjson.GetBytes(data, "*.integratedTime")
	return result.Int(), nil
}

// EntryBodyKind decodes the base64 "body" blob embedded in a Rekor entry
// and returns its apiVersion/kind, again via gjson rather than a
// per-entry-kind struct.
func EntryBodyKind(entryJSON []byte) (string, error) {
	encoded := gjson.GetBytes(entryJSON, "*.body").String()
	if encoded == "" {
		return "", omgerrors.Internal("rekor entry has no body field", nil)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", omgerrors.Internal("failed to decode rekor entry body", err)
	}
	return gjson.GetBytes(decoded, "kind").String(), nil
}

func isCoreRepo(repo string) bool { return repo == "core" }

func isOfficialRepo(repo string) bool {
	switch repo {
	case "core", "extra", "multilib", "dpkg", "apt":
		return true
	default:
		return false
	}
}
