package daemon

import (
	"context"
	"testing"

	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResultCache(t *testing.T) (*ResultCache, *pkgdb.MemoryAdapter, func()) {
	t.Helper()

	sync := []pkgdb.Package{{Name: "ripgrep", Version: "14.0.0", Repo: "extra"}}
	local := []pkgdb.Package{{Name: "ripgrep", Version: "14.0.0", Repo: "extra", Reason: pkgdb.ReasonExplicit}}
	adapter := pkgdb.NewMemoryAdapter(local, sync)

	log := logging.New("cache-test", "error", "text")
	eng := engine.New(adapter, log)
	rc := NewResultCache(eng)

	return rc, adapter, func() {
		rc.Close()
		eng.Close()
	}
}

func TestResultCacheMissThenHit(t *testing.T) {
	rc, _, cleanup := testResultCache(t)
	defer cleanup()

	ctx := context.Background()

	_, err := rc.Search(ctx, "ripgrep", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rc.Stats().Misses)

	_, err = rc.Search(ctx, "ripgrep", 10)
	require.NoError(t, err)
	stats := rc.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestResultCacheInvalidatesOnDBModTimeChange(t *testing.T) {
	rc, adapter, cleanup := testResultCache(t)
	defer cleanup()

	ctx := context.Background()

	_, err := rc.Search(ctx, "ripgrep", 10)
	require.NoError(t, err)

	adapter.Touch()

	_, err = rc.Search(ctx, "ripgrep", 10)
	require.NoError(t, err)

	stats := rc.Stats()
	assert.EqualValues(t, 0, stats.Hits, "a DB mtime bump should invalidate the prior entry, forcing a second miss")
	assert.EqualValues(t, 2, stats.Misses)
}

func TestResultCacheClearDropsEntries(t *testing.T) {
	rc, _, cleanup := testResultCache(t)
	defer cleanup()

	ctx := context.Background()

	_, _, err := rc.Info(ctx, "ripgrep")
	require.NoError(t, err)

	rc.Clear()

	_, _, err = rc.Info(ctx, "ripgrep")
	require.NoError(t, err)

	assert.EqualValues(t, 2, rc.Stats().Misses)
}
