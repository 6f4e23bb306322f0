package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) (*Engine, *pkgdb.MemoryAdapter) {
	t.Helper()
	sync := []pkgdb.Package{
		{Name: "neovim", Version: "0.10.0", Repo: "extra", DownloadCount: 900},
		{Name: "vim", Version: "9.1.0", Repo: "extra", DownloadCount: 500},
	}
	local := []pkgdb.Package{
		{Name: "vim", Version: "9.0.0", Repo: "extra", Reason: pkgdb.ReasonExplicit},
		{Name: "orphan-lib", Version: "1.0.0", Repo: "extra", Reason: pkgdb.ReasonDependency},
	}
	adapter := pkgdb.NewMemoryAdapter(local, sync)
	log := logging.New("engine-test", "error", "text")
	return New(adapter, log), adapter
}

func TestSearchReturnsOrderedResults(t *testing.T) {
	e, _ := testEngine(t)
	defer e.Close()

	results, err := e.Search(context.Background(), "vim", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestStatusCountsOrphansAndUpdates(t *testing.T) {
	e, _ := testEngine(t)
	defer e.Close()

	status, err := e.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 1, status.Explicit)
	assert.Equal(t, 1, status.Orphans)
	assert.Equal(t, 1, status.Updates)
}

func TestListUpdatesMatchesStatusCount(t *testing.T) {
	e, _ := testEngine(t)
	defer e.Close()

	status, err := e.Status(context.Background())
	require.NoError(t, err)

	updates, err := e.ListUpdates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.Updates, len(updates))
	assert.Equal(t, "vim", updates[0].Name)
	assert.Equal(t, "9.1.0", updates[0].NewVersion)
}

func TestExplicitListsOnlyExplicitPackages(t *testing.T) {
	e, _ := testEngine(t)
	defer e.Close()

	names, err := e.Explicit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"vim"}, names)
}

func TestExecuteTransactionCommitsAndEmitsProgress(t *testing.T) {
	e, _ := testEngine(t)
	defer e.Close()

	progress := make(chan pkgdb.ProgressEvent, 16)
	err := e.ExecuteTransaction(context.Background(),
		[]pkgdb.TransactionOp{{Kind: pkgdb.OpAdd, Target: "neovim"}},
		pkgdb.TransactionFlags{}, nil, progress)
	require.NoError(t, err)

	var phases []pkgdb.Phase
	for ev := range progress {
		phases = append(phases, ev.Phase)
	}
	assert.Contains(t, phases, pkgdb.PhaseAdd)

	info, ok, err := e.Info(context.Background(), "neovim")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "neovim", info.Name)
}

func TestExecuteTransactionVerifyFailureBlocksCommit(t *testing.T) {
	e, _ := testEngine(t)
	defer e.Close()

	progress := make(chan pkgdb.ProgressEvent, 16)
	verify := func(ctx context.Context, toInstall []pkgdb.Package) error {
		return assert.AnError
	}
	err := e.ExecuteTransaction(context.Background(),
		[]pkgdb.TransactionOp{{Kind: pkgdb.OpAdd, Target: "neovim"}},
		pkgdb.TransactionFlags{}, verify, progress)
	require.Error(t, err)

	for range progress {
	}

	_, ok, err := e.Info(context.Background(), "neovim")
	require.NoError(t, err)
	assert.True(t, ok) // still a known sync package, just never installed

	local, err := e.Explicit(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, local, "neovim")
}

func TestCleanCacheKeepsNewestPerBaseName(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, when time.Time) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, when, when))
	}

	now := time.Now()
	write("neovim-0.9.0-1-x86_64.pkg.tar.zst", now.Add(-2*time.Hour))
	write("neovim-0.10.0-1-x86_64.pkg.tar.zst", now.Add(-1*time.Hour))
	write("neovim-0.11.0-1-x86_64.pkg.tar.zst", now)

	result, err := CleanCache(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesRemoved)

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "neovim-0.11.0-1-x86_64.pkg.tar.zst", remaining[0].Name())
}
