// Package fsutil moves and copies directory trees on a billy filesystem.
package fsutil

import (
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jhol/marlintool/errors"
)

// IsCrossDevice reports whether err is a rename failure caused by the
// source and destination living on different filesystems.
func IsCrossDevice(err error) bool {
	return stderrors.Is(err, syscall.EXDEV)
}

// Move replaces dst with src. src is first staged next to dst, by rename
// or, across filesystems, by copy. The previous dst is set aside and only
// deleted once the staged tree is in place, so a failed move leaves dst as
// it was. The parent of dst is created if needed.
func Move(fs billy.Filesystem, src, dst string) error {
	if _, err := fs.Lstat(src); err != nil {
		if os.IsNotExist(err) {
			return errors.WithContext(
				errors.Newf(errors.CodeNotFound, "%s does not exist", src),
				"path", src,
			)
		}
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to stat move source"), "path", src)
	}

	parent, base := filepath.Dir(dst), filepath.Base(dst)
	if err := fs.MkdirAll(parent, 0o755); err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create destination parent"), "path", dst)
	}
	staged := filepath.Join(parent, "."+base+".new")
	old := filepath.Join(parent, "."+base+".old")
	for _, p := range []string{staged, old} {
		if err := util.RemoveAll(fs, p); err != nil {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to remove leftover move directory"), "path", p)
		}
	}

	copied, err := stage(fs, src, staged)
	if err != nil {
		return err
	}

	if err := swap(fs, staged, dst, old); err != nil {
		_ = util.RemoveAll(fs, staged)
		return err
	}
	_ = util.RemoveAll(fs, old)

	if copied {
		if err := util.RemoveAll(fs, src); err != nil {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to remove move source"), "path", src)
		}
	}
	return nil
}

// stage puts src at staged and reports whether it had to copy.
func stage(fs billy.Filesystem, src, staged string) (bool, error) {
	err := fs.Rename(src, staged)
	if err == nil {
		return false, nil
	}
	if !IsCrossDevice(err) {
		return false, errors.WithContext(errors.Wrapf(err, errors.CodeInternal, "failed to move %s", src), "path", staged)
	}

	if err := CopyTree(fs, src, staged); err != nil {
		_ = util.RemoveAll(fs, staged)
		return false, err
	}
	return true, nil
}

// swap renames staged to dst, keeping any existing dst at old until the
// rename succeeds. On failure dst is put back.
func swap(fs billy.Filesystem, staged, dst, old string) error {
	hadDst := true
	if _, err := fs.Lstat(dst); err != nil {
		if !os.IsNotExist(err) {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to stat destination"), "path", dst)
		}
		hadDst = false
	}

	if hadDst {
		if err := fs.Rename(dst, old); err != nil {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to set existing destination aside"), "path", dst)
		}
	}

	if err := fs.Rename(staged, dst); err != nil {
		if hadDst {
			_ = fs.Rename(old, dst)
		}
		return errors.WithContext(errors.Wrapf(err, errors.CodeInternal, "failed to move into %s", dst), "path", dst)
	}
	return nil
}

// CopyTree copies the file or directory src to dst, preserving permission
// bits and symbolic links.
func CopyTree(fs billy.Filesystem, src, dst string) error {
	return util.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to walk tree"), "path", path)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to compute relative path")
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := fs.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create directory"), "path", target)
			}
		case info.Mode()&os.ModeSymlink != 0:
			link, err := fs.Readlink(path)
			if err != nil {
				return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to read symlink"), "path", path)
			}
			if err := fs.Symlink(link, target); err != nil {
				return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create symlink"), "path", target)
			}
		default:
			if err := CopyFile(fs, path, target, info.Mode().Perm()); err != nil {
				return err
			}
		}
		return nil
	})
}

// CopyFile copies one regular file, creating the parent of dst.
func CopyFile(fs billy.Filesystem, src, dst string, perm os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to open file"), "path", src)
	}
	defer in.Close()

	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create directory"), "path", filepath.Dir(dst))
	}

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create file"), "path", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to copy file"), "path", dst)
	}
	if err := out.Close(); err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to close file"), "path", dst)
	}
	return nil
}
