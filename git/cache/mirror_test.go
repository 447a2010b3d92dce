package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/git"
	"github.com/jhol/marlintool/git/testutil"
	"github.com/jhol/marlintool/scratch"
)

// countingOps records calls and can fail fetches on demand.
type countingOps struct {
	inner    git.RemoteOperations
	clones   int
	fetches  int
	fetchErr error
}

func newCountingOps() *countingOps {
	return &countingOps{inner: git.DefaultRemoteOperations()}
}

func (c *countingOps) Clone(ctx context.Context, fs billy.Filesystem, path string, opts git.CloneOptions) (*git.Repository, error) {
	c.clones++
	return c.inner.Clone(ctx, fs, path, opts)
}

func (c *countingOps) Fetch(ctx context.Context, repo *git.Repository, opts git.FetchOptions) error {
	c.fetches++
	if c.fetchErr != nil {
		return c.fetchErr
	}
	return c.inner.Fetch(ctx, repo, opts)
}

func newMirrorCache(t *testing.T, opts ...Option) (*MirrorCache, *cacheroot.Root, *scratch.Space) {
	t.Helper()
	dir := t.TempDir()

	root, err := cacheroot.Open(filepath.Join(dir, ".cache"))
	require.NoError(t, err)

	space, err := scratch.Acquire(scratch.WithParent(filepath.Join(dir, "tmp")))
	require.NoError(t, err)
	t.Cleanup(space.Release)

	return NewMirrorCache(root, space, opts...), root, space
}

func TestGetMirrorReuse(t *testing.T) {
	ctx := context.Background()
	upstream := testutil.NewUpstream(t, "Marlin")
	ops := newCountingOps()
	mirrors, root, _ := newMirrorCache(t, WithRemoteOperations(ops))

	path, err := mirrors.GetMirror(ctx, upstream.Path)
	require.NoError(t, err)
	assert.Equal(t, root.Join("Marlin"), path)
	assert.Equal(t, 1, ops.clones)
	assert.Equal(t, 0, ops.fetches)

	head := upstream.CommitFile("Marlin/Configuration.h", "v2", "Update")

	again, err := mirrors.GetMirror(ctx, upstream.Path)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, ops.clones)
	assert.Equal(t, 1, ops.fetches)

	repo, err := git.Open(path)
	require.NoError(t, err)
	assert.True(t, repo.IsBare())
	ref, err := repo.Underlying().Reference("refs/heads/master", true)
	require.NoError(t, err)
	assert.Equal(t, head, ref.Hash().String())

	entry, err := root.Lookup("Marlin")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, cacheroot.KindMirror, entry.Kind)
	assert.Equal(t, upstream.Path, entry.URL)
}

func TestGetMirrorCorrupt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(t *testing.T, path string)
	}{
		{
			name: "plain file",
			prepare: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
			},
		},
		{
			name: "directory that is not a repository",
			prepare: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "junk"), []byte("x"), 0o644))
			},
		},
		{
			name: "repository with a working tree",
			prepare: func(t *testing.T, path string) {
				testutil.NewUpstreamAt(t, path)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := testutil.NewUpstream(t, "lib")
			ops := newCountingOps()
			mirrors, root, _ := newMirrorCache(t, WithRemoteOperations(ops))
			require.NoError(t, root.Ensure())
			tt.prepare(t, root.Join("lib"))

			_, err := mirrors.GetMirror(ctx, upstream.Path)
			require.Error(t, err)
			assert.Equal(t, errors.CodeCacheCorrupt, errors.GetCode(err))
			assert.Contains(t, err.Error(), root.Join("lib"))
			assert.Equal(t, 0, ops.clones)
			assert.Equal(t, 0, ops.fetches)
		})
	}
}

func TestGetMirrorFetchFailure(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		fetchErr error
		strict   bool
		wantCode errors.ErrorCode
	}{
		{"network failure serves stale mirror", errors.New(errors.CodeNetwork, "connection refused"), false, ""},
		{"timeout serves stale mirror", errors.New(errors.CodeTimeout, "i/o timeout"), false, ""},
		{"strict mode fails on network failure", errors.New(errors.CodeNetwork, "connection refused"), true, errors.CodeNetwork},
		{"authentication failure is fatal", errors.New(errors.CodeUnauthorized, "authentication required"), false, errors.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := testutil.NewUpstream(t, "Marlin")
			ops := newCountingOps()
			mirrors, _, _ := newMirrorCache(t, WithRemoteOperations(ops), WithStrictUpdate(tt.strict))

			path, err := mirrors.GetMirror(ctx, upstream.Path)
			require.NoError(t, err)

			ops.fetchErr = tt.fetchErr
			got, err := mirrors.GetMirror(ctx, upstream.Path)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, path, got)
				assert.DirExists(t, got)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestGetMirrorDifferentURLSameName(t *testing.T) {
	ctx := context.Background()
	upstream := testutil.NewUpstream(t, "Marlin")
	ops := newCountingOps()
	mirrors, _, _ := newMirrorCache(t, WithRemoteOperations(ops))

	path, err := mirrors.GetMirror(ctx, upstream.Path)
	require.NoError(t, err)

	// same basename, different URL: the existing mirror is reused
	other, err := mirrors.GetMirror(ctx, "https://example.invalid/fork/Marlin.git")
	require.NoError(t, err)
	assert.Equal(t, path, other)
	assert.Equal(t, 1, ops.clones)
	assert.Equal(t, 1, ops.fetches)
}

func TestGetMirrorCloneFailure(t *testing.T) {
	mirrors, root, _ := newMirrorCache(t)

	_, err := mirrors.GetMirror(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.NoDirExists(t, root.Join("missing"))
}
