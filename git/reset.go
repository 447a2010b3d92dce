package git

import (
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ResetToRemote hard-resets the current branch and working tree to
// refs/remotes/<remote>/<branch>. An empty branch means the current
// branch. Tracked files are overwritten; untracked files are left alone.
//
// Returns CodeNotFound if the remote-tracking branch does not exist.
//
// Example:
//
//	if err := repo.Fetch(ctx, git.FetchOptions{}); err != nil {
//	    return err
//	}
//	err := repo.ResetToRemote("origin", "bugfix-2.1.x")
func (r *Repository) ResetToRemote(remote, branch string) error {
	if r.bare {
		return wrapPathError(gogit.ErrIsBareRepository, "cannot reset a bare repository", r.path)
	}
	if remote == "" {
		remote = DefaultRemote
	}
	if branch == "" {
		current, err := r.CurrentBranch()
		if err != nil {
			return err
		}
		branch = current
	}

	refName := plumbing.NewRemoteReferenceName(remote, branch)
	ref, err := r.repo.Reference(refName, true)
	if err != nil {
		return wrapPathError(err, fmt.Sprintf("remote branch %s/%s not found", remote, branch), r.path)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return wrapError(err, "failed to get worktree")
	}

	err = wt.Reset(&gogit.ResetOptions{
		Commit: ref.Hash(),
		Mode:   gogit.HardReset,
	})
	if err != nil {
		return wrapPathError(err, fmt.Sprintf("failed to reset to %s/%s", remote, branch), r.path)
	}
	return nil
}
