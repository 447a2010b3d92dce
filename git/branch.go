package git

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	platformerrors "github.com/jhol/marlintool/errors"
)

// CreateBranch creates a local branch at the commit ref resolves to. The
// branch is not checked out.
//
// Returns CodeAlreadyExists if the branch exists and CodeNotFound if ref
// cannot be resolved.
//
// Example:
//
//	err := repo.CreateBranch("bugfix-2.1.x", "HEAD")
func (r *Repository) CreateBranch(name string, ref string) error {
	if name == "" || ref == "" {
		return wrapError(gogit.ErrMissingName, "failed to create branch")
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return wrapError(err, fmt.Sprintf("failed to resolve reference %q", ref))
	}

	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(branchRef, false); err == nil {
		return wrapError(gogit.ErrBranchExists, fmt.Sprintf("failed to create branch %q", name))
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, *hash)); err != nil {
		return wrapError(err, "failed to create branch reference")
	}
	return nil
}

// CheckoutBranch switches the working tree to an existing local branch.
func (r *Repository) CheckoutBranch(name string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return wrapError(err, "failed to get worktree")
	}

	err = wt.Checkout(&gogit.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	})
	if err != nil {
		return wrapError(err, fmt.Sprintf("failed to checkout branch %q", name))
	}
	return nil
}

// HasBranch reports whether refs/heads/<name> exists.
func (r *Repository) HasBranch(name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	return false, wrapError(err, "failed to look up branch")
}

// CurrentBranch returns the short name of the branch HEAD points to.
//
// Returns CodeInvalidInput when HEAD is detached.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", wrapError(err, "failed to read HEAD")
	}
	if head.Type() != plumbing.SymbolicReference || !head.Target().IsBranch() {
		return "", platformerrors.WithContext(
			platformerrors.New(platformerrors.CodeInvalidInput, "HEAD is not on a branch"),
			"path", r.path,
		)
	}
	return head.Target().Short(), nil
}

// Head returns the commit hash HEAD resolves to.
func (r *Repository) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", wrapError(err, "failed to resolve HEAD")
	}
	return ref.Hash().String(), nil
}
