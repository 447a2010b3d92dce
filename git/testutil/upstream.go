// Package testutil builds throwaway on-disk repositories for tests of the
// git package and its callers. An Upstream stands in for a remote: tests
// clone it by path, commit to it and move its branches.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jhol/marlintool/git"
)

// Test user information for commits.
const (
	TestAuthor = "Test User"
	TestEmail  = "test@example.com"
)

// Upstream is a non-bare repository used as a clone source.
type Upstream struct {
	t    testing.TB
	Path string
	Repo *git.Repository
}

// NewUpstream creates a repository called name under a fresh temp dir
// with one commit holding README.md on master.
func NewUpstream(t testing.TB, name string) *Upstream {
	t.Helper()
	return NewUpstreamAt(t, filepath.Join(t.TempDir(), name))
}

// NewUpstreamAt is NewUpstream at an explicit path.
func NewUpstreamAt(t testing.TB, path string) *Upstream {
	t.Helper()

	repo, err := git.Init(path)
	if err != nil {
		t.Fatalf("init upstream %s: %v", path, err)
	}

	u := &Upstream{t: t, Path: path, Repo: repo}
	u.CommitFile("README.md", "# "+filepath.Base(path)+"\n", "Initial commit")
	return u
}

// WriteFile writes content to rel inside the working tree.
func (u *Upstream) WriteFile(rel, content string) {
	u.t.Helper()
	full := filepath.Join(u.Path, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		u.t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		u.t.Fatalf("write %s: %v", full, err)
	}
}

// Commit commits every pending change and returns the hash.
func (u *Upstream) Commit(message string) string {
	u.t.Helper()
	hash, err := u.Repo.CreateCommit(git.CommitOptions{
		Author:     TestAuthor,
		Email:      TestEmail,
		Message:    message,
		AllowEmpty: true,
	})
	if err != nil {
		u.t.Fatalf("commit %q: %v", message, err)
	}
	return hash
}

// CommitFile writes one file and commits it.
func (u *Upstream) CommitFile(rel, content, message string) string {
	u.t.Helper()
	u.WriteFile(rel, content)
	return u.Commit(message)
}

// Branch creates name at HEAD and checks it out.
func (u *Upstream) Branch(name string) {
	u.t.Helper()
	if err := u.Repo.CreateBranch(name, "HEAD"); err != nil {
		u.t.Fatalf("create branch %s: %v", name, err)
	}
	u.Checkout(name)
}

// Checkout switches to an existing branch.
func (u *Upstream) Checkout(name string) {
	u.t.Helper()
	if err := u.Repo.CheckoutBranch(name); err != nil {
		u.t.Fatalf("checkout %s: %v", name, err)
	}
}

// Head returns the commit HEAD points to.
func (u *Upstream) Head() string {
	u.t.Helper()
	hash, err := u.Repo.Head()
	if err != nil {
		u.t.Fatalf("resolve HEAD: %v", err)
	}
	return hash
}
