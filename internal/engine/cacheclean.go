package engine

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// pkgFileRe strips the trailing "-version-release-arch.pkg.tar.zst" (or
// .xz/.gz) suffix a pacman cache file carries, leaving the package base
// name to group by.
var pkgFileRe = regexp.MustCompile(`^(.+?)-[^-]+-[^-]+-[^-]+\.pkg\.tar\.(zst|xz|gz)$`)

// CleanCacheResult is the (files_removed, bytes_freed) pair §4.1's cache
// clean side service returns.
type CleanCacheResult struct {
	FilesRemoved int
	BytesFreed   int64
}

// CleanCache groups files under dir by package base name, keeps the
// keepNewest most-recently-modified versions of each, and removes the
// rest (§4.1: "Groups files in the package cache by base name, sorts
// versions by mtime descending, removes all but the N newest per name").
// It is not funneled through the Worker: it only touches the filesystem
// package cache, never the native DB handle.
func CleanCache(dir string, keepNewest int) (CleanCacheResult, error) {
	if keepNewest < 0 {
		keepNewest = 0
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return CleanCacheResult{}, omgerrors.Internal("failed to read package cache directory", err)
	}

	type fileInfo struct {
		path    string
		modTime int64
		size    int64
	}
	groups := make(map[string][]fileInfo)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := baseName(entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		groups[base] = append(groups[base], fileInfo{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
			size:    info.Size(),
		})
	}

	result := CleanCacheResult{}

	for _, files := range groups {
		sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })

		if len(files) <= keepNewest {
			continue
		}

		for _, f := range files[keepNewest:] {
			if err := os.Remove(f.path); err != nil {
				continue
			}
			result.FilesRemoved++
			result.BytesFreed += f.size
		}
	}

	return result, nil
}

func baseName(filename string) string {
	if m := pkgFileRe.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	return filename
}
