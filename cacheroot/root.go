package cacheroot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/logging"
)

const (
	// LockFile is the advisory lock file name.
	LockFile = ".lock"
	// IndexFile is the metadata index file name.
	IndexFile = "index.json"

	defaultLockTimeout = 30 * time.Second
	lockPollInterval   = 10 * time.Millisecond
)

// Root is an opened cache directory.
type Root struct {
	fs          billy.Filesystem
	path        string
	logger      logrus.FieldLogger
	lockTimeout time.Duration

	mu    sync.Mutex
	index *index
}

// Option configures a Root.
type Option func(*Root)

// WithFilesystem sets the filesystem. Defaults to the OS filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(r *Root) {
		r.fs = fs
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Root) {
		r.logger = logger
	}
}

// WithLockTimeout sets how long Lock waits for another process.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Root) {
		if d > 0 {
			r.lockTimeout = d
		}
	}
}

// Open returns a Root for path. Nothing is written to disk.
func Open(path string, opts ...Option) (*Root, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "cache directory must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "invalid cache directory %s", path)
	}

	r := &Root{
		path:        abs,
		logger:      logging.Discard(),
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fs == nil {
		r.fs = osfs.New("/")
	}
	return r, nil
}

// Path returns the absolute cache directory.
func (r *Root) Path() string {
	return r.path
}

// Filesystem returns the filesystem the root lives on.
func (r *Root) Filesystem() billy.Filesystem {
	return r.fs
}

// Join returns the path of the cache entry called name.
func (r *Root) Join(name string) string {
	return filepath.Join(r.path, name)
}

// Ensure creates the cache directory if it does not exist.
func (r *Root) Ensure() error {
	if err := r.fs.MkdirAll(r.path, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create cache directory"),
			"path", r.path,
		)
	}
	return nil
}

// Lock takes the advisory cache lock, waiting up to the lock timeout for
// another process to release it. The returned function releases it.
func (r *Root) Lock(ctx context.Context) (func(), error) {
	if err := r.Ensure(); err != nil {
		return nil, err
	}

	lockPath := r.Join(LockFile)
	fileLock := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	acquired, err := fileLock.TryLockContext(ctx, lockPollInterval)
	if !acquired {
		if err == nil || ctx.Err() == context.DeadlineExceeded {
			return nil, errors.WithContext(
				errors.New(errors.CodeConflict, "cache is in use by another process"),
				"path", lockPath,
			)
		}
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to acquire cache lock"),
			"path", lockPath,
		)
	}

	r.logger.WithFields(logging.PathFields("cache_lock", lockPath)).Debug("Cache lock acquired")
	return func() {
		if err := fileLock.Unlock(); err != nil {
			r.logger.WithFields(logging.PathFields("cache_unlock", lockPath)).
				WithError(err).Warn("Failed to release cache lock")
		}
	}, nil
}

// ValidateName reports whether name can be used as a cache entry name. It
// must be a single path segment and must not collide with bookkeeping
// entries.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.Newf(errors.CodeInvalidInput, "invalid cache entry name %q", name)
	case strings.ContainsAny(name, `/\`):
		return errors.Newf(errors.CodeInvalidInput, "cache entry name %q must be a single path segment", name)
	case strings.HasPrefix(name, "."), name == IndexFile, name == IndexFile+".tmp":
		return errors.Newf(errors.CodeInvalidInput, "cache entry name %q is reserved", name)
	}
	return nil
}

// Record stores or refreshes index metadata for name.
func (r *Root) Record(kind Kind, name, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry, ok := idx.Entries[name]
	if !ok || entry.Kind != kind || entry.URL != url {
		entry = &Entry{Kind: kind, Name: name, URL: url, CreatedAt: now}
		idx.Entries[name] = entry
	}
	entry.LastUsed = now

	if err := r.Ensure(); err != nil {
		return err
	}
	return idx.save(r.fs, r.Join(IndexFile))
}

// Lookup returns the index entry for name, or nil if none is recorded.
func (r *Root) Lookup(name string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Entries[name]
	if !ok {
		return nil, nil
	}
	e := *entry
	return &e, nil
}

// Entries lists the cache contents sorted by name. Entries on disk that
// the index does not know about are reported with KindUnknown.
func (r *Root) Entries() ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex()
	if err != nil {
		return nil, err
	}

	infos, err := r.fs.ReadDir(r.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to read cache directory"),
			"path", r.path,
		)
	}

	var out []Entry
	for _, info := range infos {
		name := info.Name()
		if ValidateName(name) != nil {
			continue
		}
		e := Entry{Name: name, Kind: KindUnknown, LastUsed: info.ModTime()}
		if rec, ok := idx.Entries[name]; ok {
			e = *rec
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Purge removes the cache entry name and its index record.
//
// Returns CodeNotFound if neither exists.
func (r *Root) Purge(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex()
	if err != nil {
		return err
	}

	path := r.Join(name)
	_, statErr := r.fs.Lstat(path)
	_, recorded := idx.Entries[name]
	if os.IsNotExist(statErr) && !recorded {
		return errors.WithContext(
			errors.Newf(errors.CodeNotFound, "cache entry %s not found", name),
			"path", path,
		)
	}

	if err := util.RemoveAll(r.fs, path); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to remove cache entry"),
			"path", path,
		)
	}

	r.logger.WithFields(logging.PathFields("cache_purge", path)).Info("Purged cache entry")

	if !recorded {
		return nil
	}
	delete(idx.Entries, name)
	return idx.save(r.fs, r.Join(IndexFile))
}

// PurgeAll removes every entry and the index. The lock file is kept.
func (r *Root) PurgeAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos, err := r.fs.ReadDir(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to read cache directory"),
			"path", r.path,
		)
	}

	for _, info := range infos {
		if info.Name() == LockFile {
			continue
		}
		path := r.Join(info.Name())
		if err := util.RemoveAll(r.fs, path); err != nil {
			return errors.WithContext(
				errors.Wrap(err, errors.CodeInternal, "failed to remove cache entry"),
				"path", path,
			)
		}
	}

	r.index = nil
	r.logger.WithFields(logging.PathFields("cache_purge_all", r.path)).Info("Purged cache")
	return nil
}

// loadIndex must be called with r.mu held.
func (r *Root) loadIndex() (*index, error) {
	if r.index != nil {
		return r.index, nil
	}
	idx, err := loadOrCreateIndex(r.fs, r.Join(IndexFile))
	if err != nil {
		return nil, err
	}
	r.index = idx
	return idx, nil
}
