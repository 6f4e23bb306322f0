package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTransactCommitsAnAddOp(t *testing.T) {
	srv, _, cleanup := testServer(t)
	defer cleanup()

	result, err := srv.runTransact(context.Background(), TransactPayload{
		Ops: []TransactOp{{Kind: "add", Target: "neovim"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "committed", result.State)
	assert.NotEmpty(t, result.Progress)
}

func TestRunTransactRejectsUnknownOpKind(t *testing.T) {
	srv, _, cleanup := testServer(t)
	defer cleanup()

	_, err := srv.runTransact(context.Background(), TransactPayload{
		Ops: []TransactOp{{Kind: "bogus"}},
	})
	assert.Error(t, err)
}

func TestRunTransactSurfacesDependencyConflict(t *testing.T) {
	srv, _, cleanup := testServer(t)
	defer cleanup()

	result, err := srv.runTransact(context.Background(), TransactPayload{
		Ops: []TransactOp{{Kind: "remove", Target: "does-not-exist"}},
	})
	assert.Error(t, err)
	assert.Equal(t, "failed", result.State)
}

func TestBuildVerifyFuncNilKeyringSkipsVerification(t *testing.T) {
	assert.Nil(t, buildVerifyFunc(nil))
}

func TestBuildVerifyFuncFlagsInvalidSiblingSignature(t *testing.T) {
	dir := t.TempDir()
	pkgPath := filepath.Join(dir, "evil.pkg")
	require.NoError(t, os.WriteFile(pkgPath, []byte("payload"), 0o644))
	require.NoError(t, os.WriteFile(pkgPath+".sig", []byte("not a real signature"), 0o644))

	keyring := &security.Keyring{}
	verify := buildVerifyFunc(keyring)
	require.NotNil(t, verify)

	err := verify(context.Background(), []pkgdb.Package{{Name: pkgPath}})
	assert.Error(t, err)
}

func TestBuildVerifyFuncSkipsPackagesWithNoSiblingSig(t *testing.T) {
	keyring := &security.Keyring{}
	verify := buildVerifyFunc(keyring)

	err := verify(context.Background(), []pkgdb.Package{{Name: filepath.Join(t.TempDir(), "no-sig-here")}})
	assert.NoError(t, err)
}
