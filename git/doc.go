// Package git provides a thin wrapper around go-git for the operations the
// provisioner needs: bare mirror clones, pruning fetches, working clones
// from a local mirror, remote management and hard resets.
//
// # Filesystems
//
// All repository I/O goes through go-billy. By default the OS filesystem is
// rooted at "/" and every path is made absolute. Tests can pass a memfs
// with WithFilesystem.
//
// # Factory Functions
//
// Init initializes a new repository, Open opens an existing one and Clone
// clones from a URL or a local path. Open detects bare repositories by the
// absence of a .git directory.
//
//	mirror, err := git.Clone(ctx, "/work/.cache/Marlin", url, git.WithMirror())
//	if err != nil {
//	    return err
//	}
//	err = mirror.Fetch(ctx, git.FetchOptions{
//	    RefSpecs: []string{git.MirrorRefSpec},
//	    Prune:    true,
//	})
//
// # Remote Operations
//
// Clone and Fetch go through the RemoteOperations interface. The default
// implementation uses go-git; WithRemoteOperations substitutes another one,
// which lets tests count network round trips or inject failures.
//
// # Error Handling
//
// Errors are platform errors from the errors package. go-git sentinels are
// mapped to codes: missing repositories and refs become CodeNotFound,
// authentication failures CodeUnauthorized, dial failures CodeNetwork and
// deadlines CodeTimeout. The go-git error stays in the chain.
//
// # Escape Hatches
//
// Underlying returns the *gogit.Repository and Filesystem the scoped billy
// filesystem for anything this package does not cover.
package git
