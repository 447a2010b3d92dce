package git

import (
	"errors"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CreateCommit stages every change in the working tree and commits it on
// the current HEAD. Returns the new commit hash.
//
// Returns CodeConflict for a clean working tree unless AllowEmpty is set.
//
// Example:
//
//	hash, err := repo.CreateCommit(git.CommitOptions{
//	    Author:  "Jane Doe",
//	    Email:   "jane@example.com",
//	    Message: "Enable bed leveling",
//	})
func (r *Repository) CreateCommit(opts CommitOptions) (string, error) {
	switch {
	case opts.Author == "", opts.Email == "":
		return "", wrapError(gogit.ErrMissingAuthor, "failed to create commit")
	case opts.Message == "":
		return "", wrapError(errors.New("message is required"), "failed to create commit")
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", wrapError(err, "failed to get worktree")
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", wrapError(err, "failed to stage changes")
	}

	hash, err := wt.Commit(opts.Message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  opts.Author,
			Email: opts.Email,
		},
		AllowEmptyCommits: opts.AllowEmpty,
	})
	if err != nil {
		return "", wrapError(err, "failed to create commit")
	}

	return hash.String(), nil
}
