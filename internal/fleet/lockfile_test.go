package fleet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSortsByName(t *testing.T) {
	lock := Generate([]pkgdb.Package{
		{Name: "zsh", Version: "5.9", Repo: "extra"},
		{Name: "bash", Version: "5.2", Repo: "core"},
	})

	require.Len(t, lock.Packages, 2)
	assert.Equal(t, "bash", lock.Packages[0].Name)
	assert.Equal(t, "zsh", lock.Packages[1].Name)
	assert.NotEmpty(t, lock.Packages[0].Hash)
}

func TestDiffDetectsMissingExtraAndVersionDrift(t *testing.T) {
	lock := Generate([]pkgdb.Package{
		{Name: "neovim", Version: "0.10.0", Repo: "extra"},
		{Name: "git", Version: "2.44.0", Repo: "core"},
	})

	installed := []pkgdb.Package{
		{Name: "neovim", Version: "0.10.1", Repo: "extra"}, // version drift
		{Name: "curl", Version: "8.7.0", Repo: "core"},     // extra
		// git is missing
	}

	drift := Diff(lock, installed)
	require.Len(t, drift, 3)

	kinds := map[string]DriftKind{}
	for _, d := range drift {
		kinds[d.Name] = d.Kind
	}
	assert.Equal(t, DriftVersion, kinds["neovim"])
	assert.Equal(t, DriftExtra, kinds["curl"])
	assert.Equal(t, DriftMissing, kinds["git"])
}

func TestDiffReturnsEmptyWhenInSync(t *testing.T) {
	pkgs := []pkgdb.Package{{Name: "git", Version: "2.44.0", Repo: "core"}}
	lock := Generate(pkgs)
	assert.Empty(t, Diff(lock, pkgs))
}

func TestSaveAndLoadLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omg.lock.json")

	lock := Generate([]pkgdb.Package{{Name: "git", Version: "2.44.0", Repo: "core"}})
	require.NoError(t, Save(path, lock))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, lock, loaded)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWritePreCommitHookIsExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pre-commit")

	require.NoError(t, WritePreCommitHook(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.Mode()&0o100 != 0, "hook should be executable")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "omgctl fleet check")
}
