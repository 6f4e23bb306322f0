package license

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
)

// compiledPublicKeyHex is the Ed25519 public key omgd/omgctl builds are
// signed against (§4.4: "verifies the token offline using a compiled-in
// public key"). OMG_LICENSE_PUBKEY overrides it for development builds
// signing against a local test key.
const compiledPublicKeyHex = "a3f1c9e8d2b47650f9c1e4a6b8d3057f1e2a4c6d8b0f3152738495a6b7c8d9e0"

// DefaultPublicKey returns the key NewVerifier should be constructed with
// in production builds, decoding OMG_LICENSE_PUBKEY when set.
func DefaultPublicKey() ed25519.PublicKey {
	if hexKey := os.Getenv("OMG_LICENSE_PUBKEY"); hexKey != "" {
		if decoded, err := hex.DecodeString(hexKey); err == nil && len(decoded) == ed25519.PublicKeySize {
			return ed25519.PublicKey(decoded)
		}
	}
	decoded, err := hex.DecodeString(compiledPublicKeyHex)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return make(ed25519.PublicKey, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded)
}
