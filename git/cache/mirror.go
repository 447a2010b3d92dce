package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/git"
	"github.com/jhol/marlintool/logging"
)

// Scratch hands out fresh directories for working clones. *scratch.Space
// satisfies it.
type Scratch interface {
	Dir(prefix string) (string, error)
}

// MirrorCache manages bare mirrors inside a cache root.
type MirrorCache struct {
	root      *cacheroot.Root
	fs        billy.Filesystem
	scratch   Scratch
	remoteOps git.RemoteOperations
	strict    bool
	logger    logrus.FieldLogger
}

// NewMirrorCache creates a MirrorCache storing mirrors in root and working
// clones in scratch.
func NewMirrorCache(root *cacheroot.Root, scratch Scratch, opts ...Option) *MirrorCache {
	c := &MirrorCache{
		root:      root,
		fs:        root.Filesystem(),
		scratch:   scratch,
		remoteOps: git.DefaultRemoteOperations(),
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMirror returns the path of an up-to-date bare mirror of url, cloning
// it on first use.
//
// Returns CodeCacheCorrupt if the mirror path exists but is not a bare
// repository.
func (c *MirrorCache) GetMirror(ctx context.Context, url string) (string, error) {
	name, err := RepoName(url)
	if err != nil {
		return "", err
	}
	path := c.root.Join(name)

	info, err := c.fs.Stat(path)
	switch {
	case os.IsNotExist(err):
		if err := c.create(ctx, name, url, path); err != nil {
			return "", err
		}
		return path, nil
	case err != nil:
		return "", errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to stat mirror"),
			"path", path,
		)
	case !info.IsDir():
		return "", corrupt(path, "mirror path is not a directory")
	}

	if err := c.update(ctx, name, url, path); err != nil {
		return "", err
	}
	return path, nil
}

func (c *MirrorCache) create(ctx context.Context, name, url, path string) error {
	c.logger.WithFields(logging.CacheFields("mirror_create", name, url, false)).Info("Creating mirror")

	if err := c.root.Ensure(); err != nil {
		return err
	}

	_, err := git.Clone(ctx, path, url,
		git.WithMirror(),
		git.WithFilesystem(c.fs),
		git.WithRemoteOperations(c.remoteOps),
	)
	if err != nil {
		return errors.WithContext(err, "url", url)
	}

	c.record(name, url)
	return nil
}

func (c *MirrorCache) update(ctx context.Context, name, url, path string) error {
	fields := logging.CacheFields("mirror_update", name, url, true)

	if _, err := c.fs.Stat(filepath.Join(path, gogit.GitDirName)); err == nil {
		return corrupt(path, "mirror has a working tree")
	}

	repo, err := git.Open(path, git.WithFilesystem(c.fs), git.WithRemoteOperations(c.remoteOps))
	if err != nil {
		return errors.WithContext(
			errors.Wrapf(err, errors.CodeCacheCorrupt, "mirror %s is not a git repository", path),
			"path", path,
		)
	}

	origin, err := repo.Remote(git.DefaultRemote)
	if err != nil || len(origin.URLs) == 0 {
		return corrupt(path, "mirror has no origin remote")
	}
	if origin.URLs[0] != url {
		c.logger.WithFields(fields).WithField("mirror_url", origin.URLs[0]).
			Warn("Mirror was created from a different URL; fetching from its origin")
	}

	c.logger.WithFields(fields).Info("Updating mirror")
	err = repo.Fetch(ctx, git.FetchOptions{
		RemoteName: git.DefaultRemote,
		RefSpecs:   []string{git.MirrorRefSpec},
		Prune:      true,
	})
	if err != nil {
		if c.strict || !errors.IsRetryable(err) {
			return errors.WithContext(err, "path", path)
		}
		c.logger.WithFields(fields).WithError(err).Warn("Mirror update failed; using stale mirror")
		return nil
	}

	c.record(name, origin.URLs[0])
	return nil
}

func (c *MirrorCache) record(name, url string) {
	if err := c.root.Record(cacheroot.KindMirror, name, url); err != nil {
		c.logger.WithFields(logging.CacheFields("mirror_record", name, url, false)).
			WithError(err).Warn("Failed to record cache metadata")
	}
}

func corrupt(path, message string) error {
	return errors.WithContext(
		errors.Newf(errors.CodeCacheCorrupt, "%s: %s", message, path),
		"path", path,
	)
}
