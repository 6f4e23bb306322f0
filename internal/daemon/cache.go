package daemon

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/PyRo1121/omg-sub002/internal/engine"
	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/PyRo1121/omg-sub002/pkg/cache"
)

// ResultCache is the daemon's read-through memoizer for Search/Info/
// Suggest (§4.2: "keyed by (request-shape, query)... invalidated when
// the native DB's mtime changes... or on explicit CacheClear").
type ResultCache struct {
	cache   *cache.Cache
	eng     *engine.Engine
	lastMod int64

	hits   int64
	misses int64
}

// NewResultCache wires a ResultCache against the engine whose DBModTime
// it polls (through the worker) before serving a cached entry.
func NewResultCache(eng *engine.Engine) *ResultCache {
	return &ResultCache{cache: cache.New(cache.DefaultConfig()), eng: eng}
}

// Close stops the underlying cache's cleanup goroutine.
func (rc *ResultCache) Close() { rc.cache.Close() }

func searchKey(query string, limit int) string { return fmt.Sprintf("search:%s:%d", query, limit) }
func infoKey(name string) string                { return fmt.Sprintf("info:%s", name) }
func suggestKey(query string, limit int) string { return fmt.Sprintf("suggest:%s:%d", query, limit) }

// checkInvalidation bumps the cache generation if the native DB's mtime
// has moved since the last check (§4.2), performed before every cache
// lookup.
func (rc *ResultCache) checkInvalidation(ctx context.Context) {
	modTime, err := rc.eng.DBModTime(ctx)
	if err != nil {
		return
	}
	if atomic.SwapInt64(&rc.lastMod, modTime) != modTime {
		rc.cache.InvalidateGeneration()
	}
}

// Clear drops every cached entry (§4.2 CacheClear).
func (rc *ResultCache) Clear() {
	rc.cache.InvalidateAll()
}

// Stats reports hit/miss counters and current size (§4.2 CacheStats).
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

func (rc *ResultCache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&rc.hits),
		Misses: atomic.LoadInt64(&rc.misses),
		Size:   rc.cache.Size(),
	}
}

// Search serves query/limit from cache when possible, otherwise calls
// through to the engine and memoizes the result.
func (rc *ResultCache) Search(ctx context.Context, query string, limit int) ([]pkgdb.Package, error) {
	rc.checkInvalidation(ctx)

	key := searchKey(query, limit)
	if v, ok := rc.cache.Get(key); ok {
		atomic.AddInt64(&rc.hits, 1)
		return v.([]pkgdb.Package), nil
	}
	atomic.AddInt64(&rc.misses, 1)

	results, err := rc.eng.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	rc.cache.Set(key, results, 0)
	return results, nil
}

// Info serves name from cache when possible, otherwise calls through to
// the engine and memoizes the result.
func (rc *ResultCache) Info(ctx context.Context, name string) (pkgdb.Package, bool, error) {
	rc.checkInvalidation(ctx)

	key := infoKey(name)
	if v, ok := rc.cache.Get(key); ok {
		atomic.AddInt64(&rc.hits, 1)
		entry := v.(infoEntry)
		return entry.pkg, entry.found, nil
	}
	atomic.AddInt64(&rc.misses, 1)

	pkg, found, err := rc.eng.Info(ctx, name)
	if err != nil {
		return pkgdb.Package{}, false, err
	}
	rc.cache.Set(key, infoEntry{pkg: pkg, found: found}, 0)
	return pkg, found, nil
}

type infoEntry struct {
	pkg   pkgdb.Package
	found bool
}

// Suggest serves a prefix query from cache when possible, otherwise
// falls back to Search (suggestions are a bounded-limit search over the
// same index, per §4.2's inclusion of Suggest under the same cache key
// shape as Search/Info).
func (rc *ResultCache) Suggest(ctx context.Context, query string, limit int) ([]pkgdb.Package, error) {
	rc.checkInvalidation(ctx)

	key := suggestKey(query, limit)
	if v, ok := rc.cache.Get(key); ok {
		atomic.AddInt64(&rc.hits, 1)
		return v.([]pkgdb.Package), nil
	}
	atomic.AddInt64(&rc.misses, 1)

	results, err := rc.eng.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	rc.cache.Set(key, results, 0)
	return results, nil
}
