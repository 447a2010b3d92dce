package git

import (
	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// DefaultRemote is the remote name used when none is given.
const DefaultRemote = "origin"

// MirrorRefSpec fetches every ref of the remote onto the same name locally.
const MirrorRefSpec = "+refs/*:refs/*"

// Repository wraps a go-git repository opened from a path on a billy
// filesystem.
type Repository struct {
	path      string
	repo      *gogit.Repository
	fs        billy.Filesystem
	bare      bool
	remoteOps RemoteOperations
}

// Remote is a simple value type representing a Git remote.
type Remote struct {
	Name string
	URLs []string
}

// CloneOptions configures repository cloning operations.
type CloneOptions struct {
	URL           string
	Auth          transport.AuthMethod
	SingleBranch  bool                   // Clone only a single branch
	ReferenceName plumbing.ReferenceName // Branch or tag to check out
	Mirror        bool                   // Bare clone of every ref
}

// FetchOptions configures fetch operations.
type FetchOptions struct {
	RemoteName string // Default: "origin"
	Auth       transport.AuthMethod
	RefSpecs   []string // Default: the remote's configured refspecs
	Prune      bool     // Delete local refs that no longer exist remotely
}

// RemoteOptions configures remote management.
type RemoteOptions struct {
	Name string
	URL  string
}

// CommitOptions configures commit creation.
type CommitOptions struct {
	Author     string
	Email      string
	Message    string
	AllowEmpty bool
}

// RepositoryOption configures Init, Open and Clone.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	fs            billy.Filesystem
	remoteOps     RemoteOperations
	bare          bool
	mirror        bool
	singleBranch  bool
	referenceName plumbing.ReferenceName
}

// WithFilesystem sets the billy filesystem used for repository I/O.
// If not provided, the OS filesystem is used and paths are made absolute.
//
// Example:
//
//	repo, err := git.Init("/repo", git.WithFilesystem(memfs.New()))
func WithFilesystem(fs billy.Filesystem) RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.fs = fs
	}
}

// WithRemoteOperations sets the RemoteOperations implementation used for
// Clone and Fetch. Tests use it to observe or fake network operations.
//
// Example:
//
//	repo, err := git.Clone(ctx, dir, url, git.WithRemoteOperations(counting))
func WithRemoteOperations(ops RemoteOperations) RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.remoteOps = ops
	}
}

// WithBare creates a bare repository (no working tree).
// Only applicable to Init.
func WithBare() RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.bare = true
	}
}

// WithMirror makes Clone create a bare mirror holding every remote ref.
//
// Example:
//
//	repo, err := git.Clone(ctx, "/cache/Marlin", url, git.WithMirror())
func WithMirror() RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.mirror = true
	}
}

// WithSingleBranch limits the clone to a single branch.
func WithSingleBranch() RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.singleBranch = true
	}
}

// WithReferenceName sets the branch or tag to clone.
//
// Example:
//
//	repo, err := git.Clone(ctx, dir, url,
//	    git.WithSingleBranch(),
//	    git.WithReferenceName(plumbing.NewBranchReferenceName("bugfix-2.1.x")))
func WithReferenceName(ref plumbing.ReferenceName) RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.referenceName = ref
	}
}

func applyOptions(opts []RepositoryOption) *repositoryOptions {
	options := &repositoryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.remoteOps == nil {
		options.remoteOps = DefaultRemoteOperations()
	}
	return options
}
