package git

import (
	"context"
	"errors"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// RemoteOperations defines the interface for Git remote network operations.
// The default implementation delegates to go-git. Tests wrap it to count
// clones and fetches, or replace it to simulate failures.
type RemoteOperations interface {
	// Clone clones opts.URL into path on fs.
	Clone(ctx context.Context, fs billy.Filesystem, path string, opts CloneOptions) (*Repository, error)

	// Fetch downloads objects and refs from a remote of repo.
	Fetch(ctx context.Context, repo *Repository, opts FetchOptions) error
}

// DefaultRemoteOperations returns the go-git backed RemoteOperations.
func DefaultRemoteOperations() RemoteOperations {
	return &defaultRemoteOps{}
}

type defaultRemoteOps struct{}

// Clone implements RemoteOperations.Clone using go-git's CloneContext.
// Mirror clones store objects directly in path; all others keep them in
// path/.git next to the working tree.
func (d *defaultRemoteOps) Clone(ctx context.Context, fs billy.Filesystem, path string, opts CloneOptions) (*Repository, error) {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, wrapPathError(err, "failed to create clone directory", path)
	}
	scopedFs, err := fs.Chroot(path)
	if err != nil {
		return nil, wrapError(err, "failed to scope filesystem to path")
	}

	cloneOpts := &gogit.CloneOptions{
		URL:           opts.URL,
		Auth:          opts.Auth,
		SingleBranch:  opts.SingleBranch,
		ReferenceName: opts.ReferenceName,
		Mirror:        opts.Mirror,
	}

	var repo *gogit.Repository
	if opts.Mirror {
		storage := filesystem.NewStorage(scopedFs, cache.NewObjectLRUDefault())
		repo, err = gogit.CloneContext(ctx, storage, nil, cloneOpts)
	} else {
		dotGitFs, chrootErr := scopedFs.Chroot(gogit.GitDirName)
		if chrootErr != nil {
			return nil, wrapError(chrootErr, "failed to create .git filesystem")
		}
		storage := filesystem.NewStorage(dotGitFs, cache.NewObjectLRUDefault())
		repo, err = gogit.CloneContext(ctx, storage, scopedFs, cloneOpts)
	}
	if err != nil {
		return nil, wrapURLError(err, "failed to clone repository", opts.URL)
	}

	return &Repository{
		path: path,
		repo: repo,
		fs:   scopedFs,
		bare: opts.Mirror,
	}, nil
}

// Fetch implements RemoteOperations.Fetch using go-git's FetchContext.
// An up-to-date remote is not an error.
func (d *defaultRemoteOps) Fetch(ctx context.Context, repo *Repository, opts FetchOptions) error {
	remoteName := opts.RemoteName
	if remoteName == "" {
		remoteName = DefaultRemote
	}

	fetchOpts := &gogit.FetchOptions{
		RemoteName: remoteName,
		Auth:       opts.Auth,
		Prune:      opts.Prune,
	}
	for _, spec := range opts.RefSpecs {
		fetchOpts.RefSpecs = append(fetchOpts.RefSpecs, config.RefSpec(spec))
	}

	err := repo.repo.FetchContext(ctx, fetchOpts)
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		url := ""
		if r, remoteErr := repo.Remote(remoteName); remoteErr == nil && len(r.URLs) > 0 {
			url = r.URLs[0]
		}
		return wrapURLError(err, "failed to fetch from remote", url)
	}

	return nil
}

// ListRemotes returns all configured remotes for this repository.
//
// Example:
//
//	remotes, err := repo.ListRemotes()
//	for _, remote := range remotes {
//	    fmt.Printf("Remote %s: %v\n", remote.Name, remote.URLs)
//	}
func (r *Repository) ListRemotes() ([]Remote, error) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return nil, wrapError(err, "failed to list remotes")
	}

	result := make([]Remote, 0, len(remotes))
	for _, remote := range remotes {
		cfg := remote.Config()
		result = append(result, Remote{
			Name: cfg.Name,
			URLs: cfg.URLs,
		})
	}

	return result, nil
}

// Remote returns the named remote.
//
// Returns CodeNotFound if it does not exist.
func (r *Repository) Remote(name string) (Remote, error) {
	remote, err := r.repo.Remote(name)
	if err != nil {
		return Remote{}, wrapError(err, "failed to get remote "+name)
	}
	cfg := remote.Config()
	return Remote{Name: cfg.Name, URLs: cfg.URLs}, nil
}

// AddRemote adds a new remote to the repository configuration.
//
// Returns CodeAlreadyExists if the remote already exists.
//
// Example:
//
//	err := repo.AddRemote(git.RemoteOptions{
//	    Name: "upstream",
//	    URL:  "https://github.com/MarlinFirmware/Marlin.git",
//	})
func (r *Repository) AddRemote(opts RemoteOptions) error {
	_, err := r.repo.CreateRemote(&config.RemoteConfig{
		Name: opts.Name,
		URLs: []string{opts.URL},
	})
	if err != nil {
		return wrapError(err, "failed to add remote")
	}

	return nil
}

// RemoveRemote removes a remote from the repository configuration.
//
// Returns CodeNotFound if the remote doesn't exist.
func (r *Repository) RemoveRemote(name string) error {
	if err := r.repo.DeleteRemote(name); err != nil {
		return wrapError(err, "failed to remove remote")
	}

	return nil
}

// SetRemoteURL points an existing remote at url, keeping its fetch
// refspecs. A missing remote is created with the default refspecs.
func (r *Repository) SetRemoteURL(name, url string) error {
	cfg, err := r.repo.Config()
	if err != nil {
		return wrapError(err, "failed to read repository config")
	}

	remote, ok := cfg.Remotes[name]
	if !ok {
		return r.AddRemote(RemoteOptions{Name: name, URL: url})
	}
	remote.URLs = []string{url}

	if err := r.repo.Storer.SetConfig(cfg); err != nil {
		return wrapError(err, "failed to write repository config")
	}
	return nil
}

// Fetch downloads objects and refs from a remote through the
// repository's RemoteOperations. It updates refs but never touches the
// working tree.
//
// Example:
//
//	err := mirror.Fetch(ctx, git.FetchOptions{
//	    RefSpecs: []string{git.MirrorRefSpec},
//	    Prune:    true,
//	})
func (r *Repository) Fetch(ctx context.Context, opts FetchOptions) error {
	ops := r.remoteOps
	if ops == nil {
		ops = DefaultRemoteOperations()
	}
	//nolint:wrapcheck // Errors from remoteOps are already wrapped in their implementations
	return ops.Fetch(ctx, r, opts)
}
