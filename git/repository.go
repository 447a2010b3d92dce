package git

import (
	"context"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// resolvePath picks the filesystem for a repository path. The OS
// filesystem is rooted at "/" and paths are made absolute so that a
// relative path is never joined twice.
func resolvePath(options *repositoryOptions, path string) (billy.Filesystem, string, error) {
	if options.fs != nil {
		return options.fs, path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", wrapError(err, "failed to resolve repository path")
	}
	return osfs.New("/"), abs, nil
}

// Init creates a new Git repository at the specified path.
//
// Returns the initialized Repository or an error if initialization fails.
// Returns CodeAlreadyExists if a repository already exists at the path.
//
// Examples:
//
//	// Create a standard repository
//	repo, err := git.Init("/path/to/repo")
//
//	// Create a bare repository
//	repo, err := git.Init("/path/to/repo.git", git.WithBare())
func Init(path string, opts ...RepositoryOption) (*Repository, error) {
	options := applyOptions(opts)
	fs, path, err := resolvePath(options, path)
	if err != nil {
		return nil, err
	}

	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, wrapError(err, "failed to create repository directory")
	}
	scopedFs, err := fs.Chroot(path)
	if err != nil {
		return nil, wrapError(err, "failed to scope filesystem to path")
	}

	var repo *gogit.Repository
	if options.bare {
		storage := filesystem.NewStorage(scopedFs, cache.NewObjectLRUDefault())
		repo, err = gogit.Init(storage, nil)
	} else {
		dotGitFs, chrootErr := scopedFs.Chroot(gogit.GitDirName)
		if chrootErr != nil {
			return nil, wrapError(chrootErr, "failed to create .git filesystem")
		}
		storage := filesystem.NewStorage(dotGitFs, cache.NewObjectLRUDefault())
		repo, err = gogit.Init(storage, scopedFs)
	}
	if err != nil {
		return nil, wrapPathError(err, "failed to initialize repository", path)
	}

	return &Repository{
		path:      path,
		repo:      repo,
		fs:        scopedFs,
		bare:      options.bare,
		remoteOps: options.remoteOps,
	}, nil
}

// Open opens an existing Git repository at the specified path. A path
// holding a .git directory opens with a working tree; anything else is
// opened as a bare repository.
//
// Returns CodeNotFound if no repository exists at the path.
//
// Example:
//
//	repo, err := git.Open("/path/to/repo")
//	if repo.IsBare() {
//	    ...
//	}
func Open(path string, opts ...RepositoryOption) (*Repository, error) {
	options := applyOptions(opts)
	fs, path, err := resolvePath(options, path)
	if err != nil {
		return nil, err
	}

	scopedFs, err := fs.Chroot(path)
	if err != nil {
		return nil, wrapError(err, "failed to scope filesystem to path")
	}

	var repo *gogit.Repository
	bare := true
	if info, statErr := scopedFs.Stat(gogit.GitDirName); statErr == nil && info.IsDir() {
		bare = false
		dotGitFs, chrootErr := scopedFs.Chroot(gogit.GitDirName)
		if chrootErr != nil {
			return nil, wrapError(chrootErr, "failed to scope filesystem to .git")
		}
		storage := filesystem.NewStorage(dotGitFs, cache.NewObjectLRUDefault())
		repo, err = gogit.Open(storage, scopedFs)
	} else {
		storage := filesystem.NewStorage(scopedFs, cache.NewObjectLRUDefault())
		repo, err = gogit.Open(storage, nil)
	}
	if err != nil {
		return nil, wrapPathError(err, "failed to open repository", path)
	}

	return &Repository{
		path:      path,
		repo:      repo,
		fs:        scopedFs,
		bare:      bare,
		remoteOps: options.remoteOps,
	}, nil
}

// Clone clones url into path using the configured RemoteOperations. The
// directory is removed again if the clone fails.
//
// Examples:
//
//	// Bare mirror of every ref
//	repo, err := git.Clone(ctx, "/cache/Marlin", url, git.WithMirror())
//
//	// Working clone of one branch from a local mirror
//	repo, err := git.Clone(ctx, dir, "/cache/Marlin",
//	    git.WithSingleBranch(),
//	    git.WithReferenceName(plumbing.NewBranchReferenceName("2.1.x")))
func Clone(ctx context.Context, path, url string, opts ...RepositoryOption) (*Repository, error) {
	options := applyOptions(opts)
	fs, path, err := resolvePath(options, path)
	if err != nil {
		return nil, err
	}

	cloneOpts := CloneOptions{
		URL:           url,
		SingleBranch:  options.singleBranch,
		ReferenceName: options.referenceName,
		Mirror:        options.mirror,
	}

	repo, err := options.remoteOps.Clone(ctx, fs, path, cloneOpts)
	if err != nil {
		_ = util.RemoveAll(fs, path)
		//nolint:wrapcheck // Errors from remoteOps are already wrapped in their implementations
		return nil, err
	}
	repo.remoteOps = options.remoteOps
	return repo, nil
}

// Underlying returns the underlying go-git Repository for operations not
// covered by this wrapper.
func (r *Repository) Underlying() *gogit.Repository {
	return r.repo
}

// Filesystem returns the billy.Filesystem scoped to the repository path.
func (r *Repository) Filesystem() billy.Filesystem {
	return r.fs
}

// Path returns the repository path.
func (r *Repository) Path() string {
	return r.path
}

// IsBare reports whether the repository has no working tree.
func (r *Repository) IsBare() bool {
	return r.bare
}
