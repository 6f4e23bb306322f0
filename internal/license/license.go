// Package license implements the License & Usage Pipeline (§4.4):
// offline-verifiable EdDSA JWT license tokens with machine binding,
// feature-tier gating, usage counters with achievements, a bounded event
// queue, and session rotation.
package license

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// Tier is §3's ordered tier domain: Free < Pro < Team < Enterprise.
type Tier int

const (
	TierFree Tier = iota
	TierPro
	TierTeam
	TierEnterprise
)

func (t Tier) String() string {
	switch t {
	case TierEnterprise:
		return "enterprise"
	case TierTeam:
		return "team"
	case TierPro:
		return "pro"
	default:
		return "free"
	}
}

func tierFromString(s string) Tier {
	switch s {
	case "enterprise":
		return TierEnterprise
	case "team":
		return TierTeam
	case "pro":
		return TierPro
	default:
		return TierFree
	}
}

// refreshWindow is §4.4's "needs_refresh iff exp − now < 1 day".
const refreshWindow = 24 * time.Hour

// Claims are the JWT claims §6 specifies: sub, tier, features, exp, iat,
// mid (optional), lic.
type Claims struct {
	Tier     string   `json:"tier"`
	Features []string `json:"features"`
	MachineID string  `json:"mid,omitempty"`
	LicenseKey string `json:"lic"`
	jwt.RegisteredClaims
}

// License is §3's License record, persisted to license.json (§6) with
// owner-only permissions.
type License struct {
	Key         string    `json:"key"`
	Tier        Tier      `json:"tier"`
	Features    []string  `json:"feature_set"`
	Customer    string    `json:"customer"`
	ExpiresAt   time.Time `json:"expires_at"`
	ValidatedAt time.Time `json:"validated_at"`
	Token       string    `json:"token"`
	MachineID   string    `json:"machine_id"`
}

// Verifier validates EdDSA-signed license tokens offline using a compiled-in
// public key (§4.4: "The CLI verifies the token offline using a compiled-in
// public key").
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier wires a Verifier against the distributed public key.
func NewVerifier(publicKey ed25519.PublicKey) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// Verify checks token's signature and expiry, and — when machineID is
// non-empty — that the token's mid claim matches it (§3: "optionally mid
// == machine_id").
func (v *Verifier) Verify(token, machineID string) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, omgerrors.SignatureInvalid("license token", nil)
		}
		return v.publicKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, omgerrors.SignatureInvalid("license token", err)
	}

	if claims.MachineID != "" && machineID != "" && claims.MachineID != machineID {
		return nil, omgerrors.SignatureInvalid("license token", nil)
	}

	return claims, nil
}

// ComputeMachineID derives the first 16 hex chars of SHA-256(machine-id ||
// hostname || user) (§3).
func ComputeMachineID(rawMachineID, hostname, user string) string {
	sum := sha256.Sum256([]byte(rawMachineID + hostname + user))
	return hex.EncodeToString(sum[:])[:16]
}

// IsValidOffline reports whether l's token has a future expiry (§3: "A
// license is valid offline iff its token verifies and exp > now"). The
// caller is expected to have already run Verify at load time; this is the
// cheap, repeatable check commands use per-invocation.
func (l License) IsValidOffline() bool {
	return time.Now().Before(l.ExpiresAt)
}

// NeedsRefresh reports whether less than refreshWindow remains (§4.4).
func (l License) NeedsRefresh() bool {
	return time.Until(l.ExpiresAt) < refreshWindow
}

// HasFeature reports current_tier ≥ required_tier for named; unknown
// feature names are permitted for forward compatibility (§4.4).
func (l License) HasFeature(name string, requiredTier Tier) bool {
	for _, f := range l.Features {
		if f == name {
			return true
		}
	}
	return l.Tier >= requiredTier
}

// FromClaims builds a License record from verified claims plus the
// activation-time fields the server response carries alongside the token.
func FromClaims(claims *Claims, token, customer string) License {
	return License{
		Key:         claims.LicenseKey,
		Tier:        tierFromString(claims.Tier),
		Features:    claims.Features,
		Customer:    customer,
		ExpiresAt:   claims.ExpiresAt.Time,
		ValidatedAt: time.Now(),
		Token:       token,
		MachineID:   claims.MachineID,
	}
}

// Save persists l to path with owner-only permissions (§4.4, §6).
func Save(path string, l License) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return omgerrors.Internal("failed to marshal license", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return omgerrors.Internal("failed to write license file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return omgerrors.Internal("failed to persist license file", err)
	}
	return nil
}

// Load reads a previously-saved License, or (License{}, false) if absent.
func Load(path string) (License, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return License{}, false, nil
	}
	if err != nil {
		return License{}, false, omgerrors.Internal("failed to read license file", err)
	}

	var l License
	if err := json.Unmarshal(data, &l); err != nil {
		return License{}, false, omgerrors.InvalidJSON(path, err)
	}
	return l, true, nil
}
