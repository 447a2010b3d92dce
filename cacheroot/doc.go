// Package cacheroot owns the cache directory shared by the download cache
// and the git mirror cache.
//
// The directory is created lazily on first write. Besides the cached
// files and mirrors it holds two bookkeeping entries:
//
//	.lock       advisory lock serializing concurrent invocations
//	index.json  informational metadata (source URL, created and last used)
//
// The filesystem stays the source of truth for hits and misses; the index
// only records where an entry came from.
//
// Basic usage:
//
//	root, err := cacheroot.Open("/work/.cache", cacheroot.WithLockTimeout(30*time.Second))
//	if err != nil {
//	    return err
//	}
//	unlock, err := root.Lock(ctx)
//	if err != nil {
//	    return err
//	}
//	defer unlock()
package cacheroot
