package cache

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/git"
	"github.com/jhol/marlintool/logging"
)

// Checkout creates a working clone of the mirror at mirrorPath in a new
// scratch directory and returns its path. A non-empty branch produces a
// single-branch clone with that branch checked out; an empty branch clones
// everything and checks out the mirror's HEAD.
//
// Returns CodeNotFound if branch does not exist in the mirror.
func (c *MirrorCache) Checkout(ctx context.Context, mirrorPath, branch string) (string, error) {
	mirror, err := git.Open(mirrorPath, git.WithFilesystem(c.fs))
	if err != nil {
		return "", errors.WithContext(
			errors.Wrapf(err, errors.CodeCacheCorrupt, "mirror %s is not a git repository", mirrorPath),
			"path", mirrorPath,
		)
	}

	opts := []git.RepositoryOption{
		git.WithFilesystem(c.fs),
		git.WithRemoteOperations(c.remoteOps),
	}

	if branch != "" {
		ok, err := mirror.HasBranch(branch)
		if err != nil {
			return "", err
		}
		if !ok {
			err := errors.Newf(errors.CodeNotFound, "branch %s not found in mirror %s", branch, mirrorPath)
			return "", errors.WithContext(errors.WithContext(err, "branch", branch), "path", mirrorPath)
		}
		opts = append(opts,
			git.WithSingleBranch(),
			git.WithReferenceName(plumbing.NewBranchReferenceName(branch)),
		)
	}

	dir, err := c.scratch.Dir("checkout")
	if err != nil {
		return "", err
	}

	if _, err := git.Clone(ctx, dir, mirrorPath, opts...); err != nil {
		return "", errors.WithContext(err, "path", mirrorPath)
	}

	c.logger.WithFields(logging.PathFields("checkout", dir)).
		WithField("branch", branch).Debug("Created working clone")
	return dir, nil
}
