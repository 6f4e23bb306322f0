// Package security implements the Security Core (§4.3): PGP signature
// verification, SLSA/Rekor provenance lookups, OSV vulnerability scanning,
// secret detection, a hash-chained audit log, and the TOML policy engine.
package security

import (
	"bytes"
	"io"
	"os"

	"golang.org/x/crypto/openpgp"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// Keyring holds the distro certificates loaded at process start (§4.3:
// "load the distro keyring, a well-known file containing one or more
// certificates").
type Keyring struct {
	entities openpgp.EntityList
}

// LoadKeyring parses an ASCII-armored or binary keyring file.
func LoadKeyring(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, omgerrors.FileNotFound(path, err)
	}
	defer f.Close()

	entities, err := openpgp.ReadKeyRing(f)
	if err != nil {
		// Retry as an armored keyring; distro keyrings ship either way.
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr == nil {
			entities, err = openpgp.ReadArmoredKeyRing(f)
		}
	}
	if err != nil {
		return nil, omgerrors.Internal("failed to parse keyring "+path, err)
	}

	return &Keyring{entities: entities}, nil
}

// VerifyDetached checks sig as a detached signature over data against every
// signing-capable, non-revoked subkey in the keyring (§4.3: "Success = one
// valid signature"). CheckDetachedSignature already implements the
// issuer-aliasing and subkey-selection rules; it hashes data once with
// the signature's declared algorithm and tries every candidate
// certificate.
func (k *Keyring) VerifyDetached(data, sig []byte) error {
	_, err := openpgp.CheckDetachedSignature(k.entities, bytes.NewReader(data), bytes.NewReader(sig))
	if err != nil {
		return omgerrors.SignatureInvalid("package signature", err)
	}
	return nil
}

// VerifyFile is the file-path convenience form used by the transaction
// verify phase (§4.1: "every Add ... with a sibling .sig is verified").
func (k *Keyring) VerifyFile(dataPath, sigPath string) error {
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return omgerrors.FileNotFound(dataPath, err)
	}
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return omgerrors.FileNotFound(sigPath, err)
	}
	return k.VerifyDetached(data, sig)
}
