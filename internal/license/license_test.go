package license

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, priv ed25519.PrivateKey, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	claims := Claims{
		Tier:       "pro",
		Features:   []string{"sbom"},
		MachineID:  "abc123",
		LicenseKey: "key-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := signedToken(t, priv, claims)

	v := NewVerifier(pub)
	got, err := v.Verify(token, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "pro", got.Tier)
}

func TestVerifierRejectsMachineIDMismatch(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	claims := Claims{
		Tier:      "free",
		MachineID: "abc123",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signedToken(t, priv, claims)

	v := NewVerifier(pub)
	_, err = v.Verify(token, "different-machine")
	assert.Error(t, err)
}

func TestVerifierRejectsWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	claims := Claims{
		Tier: "free",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := signedToken(t, priv, claims)

	v := NewVerifier(otherPub)
	_, err = v.Verify(token, "")
	assert.Error(t, err)
}

func TestComputeMachineIDIsDeterministic(t *testing.T) {
	a := ComputeMachineID("machine-1", "host-1", "user-1")
	b := ComputeMachineID("machine-1", "host-1", "user-1")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestIsValidOfflineAndNeedsRefresh(t *testing.T) {
	l := License{ExpiresAt: time.Now().Add(2 * time.Hour)}
	assert.True(t, l.IsValidOffline())
	assert.True(t, l.NeedsRefresh())

	l.ExpiresAt = time.Now().Add(48 * time.Hour)
	assert.False(t, l.NeedsRefresh())

	l.ExpiresAt = time.Now().Add(-time.Hour)
	assert.False(t, l.IsValidOffline())
}

func TestHasFeatureChecksExplicitListThenTier(t *testing.T) {
	l := License{Tier: TierFree, Features: []string{"secret-scan"}}
	assert.True(t, l.HasFeature("secret-scan", TierPro))
	assert.False(t, l.HasFeature("sbom", TierPro))

	l.Tier = TierEnterprise
	assert.True(t, l.HasFeature("sbom", TierPro))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.json")

	l := License{Key: "k1", Tier: TierTeam, Customer: "acme", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, Save(path, l))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, ok, err := Load(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k1", loaded.Key)
	assert.Equal(t, TierTeam, loaded.Tier)
}

func TestLoadMissingFileReturnsNotOK(t *testing.T) {
	_, ok, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}
