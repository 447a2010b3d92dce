package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/fsutil"
)

// Limits bounds what NativeExtractor will write. Zero disables a limit.
type Limits struct {
	MaxFileSize  int64
	MaxTotalSize int64
	MaxFiles     int
}

// DefaultLimits fit the largest toolchain archives with headroom.
var DefaultLimits = Limits{
	MaxFileSize:  1 << 30,
	MaxTotalSize: 4 << 30,
	MaxFiles:     200000,
}

// NativeExtractor unpacks archives without external tools.
type NativeExtractor struct {
	fs     billy.Filesystem
	limits Limits
}

// NativeOption configures a NativeExtractor.
type NativeOption func(*NativeExtractor)

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) NativeOption {
	return func(e *NativeExtractor) {
		e.limits = l
	}
}

// WithFilesystem sets the filesystem archives are read from and extracted
// into. Paths passed to Extract are interpreted on it.
func WithFilesystem(fs billy.Filesystem) NativeOption {
	return func(e *NativeExtractor) {
		e.fs = fs
	}
}

// NewNativeExtractor creates a NativeExtractor on the host filesystem.
func NewNativeExtractor(opts ...NativeOption) *NativeExtractor {
	e := &NativeExtractor{fs: osfs.New("/"), limits: DefaultLimits}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Require implements Extractor. Only .tar.xz is rejected.
func (e *NativeExtractor) Require(archive string) error {
	format, err := Detect(archive)
	if err != nil {
		return err
	}
	if format == FormatTarXz {
		return errors.WithContext(
			errors.Newf(errors.CodeNotImplemented, "native extraction of %s archives is not supported: %s", format, archive),
			"path", archive,
		)
	}
	return nil
}

// Extract implements Extractor.
func (e *NativeExtractor) Extract(ctx context.Context, archive, dir string) error {
	if err := e.Require(archive); err != nil {
		return err
	}
	format, err := Detect(archive)
	if err != nil {
		return err
	}

	archive, dir, err = absPaths(archive, dir)
	if err != nil {
		return err
	}

	f, err := e.fs.Open(archive)
	if err != nil {
		code := errors.CodeInternal
		if os.IsNotExist(err) {
			code = errors.CodeNotFound
		}
		return errors.WithContext(errors.Wrapf(err, code, "failed to open archive %s", archive), "path", archive)
	}
	defer f.Close()

	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create extraction directory"),
			"path", dir,
		)
	}

	x := &extraction{fs: e.fs, root: dir, limits: e.limits}
	switch format {
	case FormatZip:
		info, err := e.fs.Stat(archive)
		if err != nil {
			return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to stat archive"), "path", archive)
		}
		err = x.zip(ctx, f, info.Size())
		return annotate(err, archive)
	case FormatTarBz2:
		return annotate(x.tar(ctx, bzip2.NewReader(f)), archive)
	default:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.WithContext(
				errors.Wrapf(err, errors.CodeInvalidInput, "archive %s is not gzip compressed", archive),
				"path", archive,
			)
		}
		defer gz.Close()
		return annotate(x.tar(ctx, gz), archive)
	}
}

type extraction struct {
	fs     billy.Filesystem
	root   string
	limits Limits
	files  int
	total  int64
}

func (x *extraction) tar(ctx context.Context, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.CodeInvalidInput, "failed to read tar entry")
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CodeTimeout, "extraction canceled")
		}

		full, err := safeJoin(x.root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = x.mkdir(full)
		case tar.TypeReg:
			err = x.file(hdr.Name, full, tr, hdr.Size, os.FileMode(hdr.Mode))
		case tar.TypeSymlink:
			err = x.symlink(hdr.Name, full, hdr.Linkname)
		case tar.TypeLink:
			err = x.hardlink(hdr.Name, full, hdr.Linkname)
		default:
			// devices, fifos and pax metadata are skipped
		}
		if err != nil {
			return err
		}
	}
}

func (x *extraction) zip(ctx context.Context, r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to read zip directory")
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.CodeTimeout, "extraction canceled")
		}

		full, err := safeJoin(x.root, zf.Name)
		if err != nil {
			return err
		}

		mode := zf.Mode()
		switch {
		case mode.IsDir():
			err = x.mkdir(full)
		case mode&os.ModeSymlink != 0:
			err = x.zipSymlink(zf, full)
		default:
			err = x.zipFile(zf, full, mode)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *extraction) zipFile(zf *zip.File, full string, mode os.FileMode) error {
	rc, err := zf.Open()
	if err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "failed to open zip entry %s", zf.Name)
	}
	defer rc.Close()
	return x.file(zf.Name, full, rc, int64(zf.UncompressedSize64), mode)
}

func (x *extraction) zipSymlink(zf *zip.File, full string) error {
	rc, err := zf.Open()
	if err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "failed to open zip entry %s", zf.Name)
	}
	defer rc.Close()

	target, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "failed to read zip entry %s", zf.Name)
	}
	return x.symlink(zf.Name, full, string(target))
}

func (x *extraction) count(name string, size int64) error {
	x.files++
	if x.limits.MaxFiles > 0 && x.files > x.limits.MaxFiles {
		return unsafeEntry(name, "archive has too many entries")
	}
	if x.limits.MaxFileSize > 0 && size > x.limits.MaxFileSize {
		return unsafeEntry(name, "entry exceeds maximum file size")
	}
	x.total += size
	if x.limits.MaxTotalSize > 0 && x.total > x.limits.MaxTotalSize {
		return unsafeEntry(name, "archive exceeds maximum extracted size")
	}
	return nil
}

func (x *extraction) mkdir(full string) error {
	if err := x.fs.MkdirAll(full, 0o755); err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create directory"), "path", full)
	}
	return nil
}

func (x *extraction) file(name, full string, r io.Reader, size int64, mode os.FileMode) error {
	if err := x.count(name, size); err != nil {
		return err
	}
	if err := x.mkdir(filepath.Dir(full)); err != nil {
		return err
	}

	out, err := x.fs.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, sanitize(mode))
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create file"), "path", full)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(r, size+1))
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInvalidInput, "failed to write entry"), "path", full)
	}
	if n > size {
		return unsafeEntry(name, "entry is larger than its declared size")
	}
	return nil
}

func (x *extraction) symlink(name, full, target string) error {
	if err := x.count(name, 0); err != nil {
		return err
	}
	if err := validateLink(x.root, name, target); err != nil {
		return err
	}
	if err := x.mkdir(filepath.Dir(full)); err != nil {
		return err
	}
	_ = x.fs.Remove(full)
	if err := x.fs.Symlink(target, full); err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to create symlink"), "path", full)
	}
	return nil
}

// hardlink copies the already extracted target, since billy has no link call.
func (x *extraction) hardlink(name, full, target string) error {
	src, err := safeJoin(x.root, target)
	if err != nil {
		return err
	}
	info, err := x.fs.Stat(src)
	if err != nil {
		return unsafeEntry(name, "hard link target "+target+" was not extracted")
	}
	if err := x.count(name, info.Size()); err != nil {
		return err
	}
	return fsutil.CopyFile(x.fs, src, full, sanitize(info.Mode()))
}

// sanitize drops setuid, setgid, sticky and world-write bits.
func sanitize(mode os.FileMode) os.FileMode {
	perm := mode.Perm() &^ 0o022
	if perm == 0 {
		return 0o644
	}
	return perm | 0o600
}

func annotate(err error, archive string) error {
	if err == nil {
		return nil
	}
	return errors.WithContext(errors.Wrapf(err, errors.GetCode(err), "failed to extract %s", archive), "path", archive)
}
