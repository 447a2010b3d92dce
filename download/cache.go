package download

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/fsutil"
	"github.com/jhol/marlintool/logging"
)

// Scratch hands out paths for partial downloads. *scratch.Space satisfies
// it.
type Scratch interface {
	File(name string) string
}

// Cache is the download cache.
type Cache struct {
	root    *cacheroot.Root
	fs      billy.Filesystem
	scratch Scratch
	fetcher Fetcher
	logger  logrus.FieldLogger
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a download cache storing files in root. Partial downloads
// are written to paths handed out by scratch.
func New(root *cacheroot.Root, scratch Scratch, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		root:    root,
		fs:      root.Filesystem(),
		scratch: scratch,
		fetcher: fetcher,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Require checks that the tools the fetcher shells out to are installed.
// Fetchers that need none always pass.
func (c *Cache) Require() error {
	if r, ok := c.fetcher.(interface{ Require() error }); ok {
		return r.Require()
	}
	return nil
}

// Name derives the default destination name from a URL: the last path
// segment with any query or fragment removed.
func Name(rawURL string) (string, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	name := path.Base(strings.TrimRight(p, "/"))
	if err := cacheroot.ValidateName(name); err != nil {
		return "", errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "cannot derive a file name from %s", rawURL),
			"url", rawURL,
		)
	}
	return name, nil
}

// Fetch returns the path of the cached file name, downloading it from url
// on a miss. An empty name is derived from url with Name.
//
// A hit performs no network access. A directory at the destination is
// reported as CodeCacheCorrupt.
func (c *Cache) Fetch(ctx context.Context, rawURL, name string) (string, error) {
	if name == "" {
		derived, err := Name(rawURL)
		if err != nil {
			return "", err
		}
		name = derived
	}
	if err := cacheroot.ValidateName(name); err != nil {
		return "", err
	}

	dst := c.root.Join(name)
	fields := logging.CacheFields("download", name, rawURL, false)

	info, err := c.fs.Stat(dst)
	switch {
	case err == nil && info.IsDir():
		return "", errors.WithContext(
			errors.Newf(errors.CodeCacheCorrupt, "cache entry %s is a directory, expected a file", dst),
			"path", dst,
		)
	case err == nil:
		c.hit(name, rawURL, dst)
		return dst, nil
	case !os.IsNotExist(err):
		return "", errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to stat cache entry"),
			"path", dst,
		)
	}

	c.logger.WithFields(fields).Info("Downloading")

	tmp := c.scratch.File(name)
	if err := c.fetcher.Fetch(ctx, rawURL, tmp); err != nil {
		return "", errors.WithContext(err, "url", rawURL)
	}

	if err := c.root.Ensure(); err != nil {
		return "", err
	}
	if err := c.promote(tmp, dst); err != nil {
		return "", err
	}

	if err := c.root.Record(cacheroot.KindDownload, name, rawURL); err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("Failed to record cache metadata")
	}
	c.logger.WithFields(logging.PathFields("download_promote", dst)).Debug("Download cached")
	return dst, nil
}

func (c *Cache) hit(name, rawURL, dst string) {
	fields := logging.CacheFields("download", name, rawURL, true)
	c.logger.WithFields(fields).WithField(logging.FieldPath, dst).Info("Using cached download")

	entry, err := c.root.Lookup(name)
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("Failed to read cache metadata")
		return
	}
	if entry != nil && entry.URL != rawURL {
		c.logger.WithFields(fields).WithField("cached_url", entry.URL).
			Warn("Cached file was downloaded from a different URL")
		return
	}
	if err := c.root.Record(cacheroot.KindDownload, name, rawURL); err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("Failed to record cache metadata")
	}
}

// promote moves tmp to dst so that dst only ever appears complete. When
// the scratch space is on another filesystem the file is first copied to a
// temporary name inside the cache root.
func (c *Cache) promote(tmp, dst string) error {
	err := c.fs.Rename(tmp, dst)
	if err == nil {
		return nil
	}
	if !fsutil.IsCrossDevice(err) {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to move download into cache"),
			"path", dst,
		)
	}

	staged, err := util.TempFile(c.fs, c.root.Path(), ".download-")
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create staging file"),
			"path", c.root.Path(),
		)
	}
	stagedPath := staged.Name()
	if !filepath.IsAbs(stagedPath) {
		stagedPath = filepath.Join(c.root.Path(), filepath.Base(stagedPath))
	}

	if err := copyInto(c.fs, tmp, staged); err != nil {
		_ = c.fs.Remove(stagedPath)
		return errors.WithContext(err, "path", dst)
	}
	if err := c.fs.Rename(stagedPath, dst); err != nil {
		_ = c.fs.Remove(stagedPath)
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to move download into cache"),
			"path", dst,
		)
	}
	return nil
}

func copyInto(fs billy.Filesystem, src string, dst billy.File) error {
	in, err := fs.Open(src)
	if err != nil {
		dst.Close()
		return errors.Wrap(err, errors.CodeInternal, "failed to open download")
	}
	defer in.Close()

	if _, err := io.Copy(dst, in); err != nil {
		dst.Close()
		return errors.Wrap(err, errors.CodeInternal, "failed to copy download")
	}
	if err := dst.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close staging file")
	}
	return nil
}
