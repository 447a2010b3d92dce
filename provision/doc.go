// Package provision assembles a firmware build environment.
//
// A Provisioner composes the download cache, the git mirror cache, an
// archive extractor, the configuration snapshot store and the toolchain
// runner. Every intermediate artifact is built in the caller's scratch
// space and moved into its final location only once complete, so a failed
// step leaves the previous installation in place.
//
// The caller owns the scratch space and the cache lock:
//
//	space, err := scratch.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer space.Release()
//
//	unlock, err := root.Lock(ctx)
//	if err != nil {
//	    return err
//	}
//	defer unlock()
//
//	p := provision.New(cfg, space, downloads, mirrors)
//	err = p.Setup(ctx)
package provision
