// Package cache keeps bare mirrors of remote repositories so that repeated
// "get latest" operations are incremental fetches instead of full clones.
//
// # Layout
//
// Mirrors live directly in the cache root, one directory per repository
// name:
//
//	.cache/
//	├── Marlin/          # bare mirror of .../MarlinFirmware/Marlin.git
//	├── U8glib_Arduino/  # bare mirror of a dependency
//	└── index.json       # metadata owned by the cacheroot package
//
// The name is the last path segment of the URL with its extension removed
// (see RepoName), so two URLs with the same basename share a mirror. When a
// mirror's origin differs from the requested URL a warning is logged and the
// mirror is fetched from its own origin.
//
// # Mirrors
//
// GetMirror clones a missing mirror with every ref, or fetches all refs
// into an existing one with pruning. A mirror is never deleted or
// re-cloned implicitly; only an explicit purge removes it.
//
// A failed fetch of an existing mirror is handled by classification:
// network failures and timeouts log a warning and the stale mirror is
// served, everything else fails. WithStrictUpdate makes every failure fatal.
//
// # Working Clones
//
// Checkout clones a mirror by local path into a new directory under the
// scratch space. It never touches the network. The caller owns the clone
// and must move it out of scratch space to keep it.
//
// Basic usage:
//
//	mirrors := cache.NewMirrorCache(root, space, cache.WithLogger(logger))
//	mirror, err := mirrors.GetMirror(ctx, "https://github.com/MarlinFirmware/Marlin.git")
//	if err != nil {
//	    return err
//	}
//	clone, err := mirrors.Checkout(ctx, mirror, "bugfix-2.1.x")
package cache
