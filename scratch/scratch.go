// Package scratch manages the per-invocation scratch directory.
//
// Every partial download, extracted archive and working clone is created
// under one Space. The Space is removed when the invocation ends, on
// success and on failure alike, so nothing partial survives a run.
package scratch

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/logging"
)

const prefix = "marlintool-"

// Space is an exclusively owned scratch directory.
type Space struct {
	fs     billy.Filesystem
	path   string
	logger logrus.FieldLogger

	once sync.Once
}

// Option configures Acquire.
type Option func(*options)

type options struct {
	parent string
	logger logrus.FieldLogger
}

// WithParent creates the space under dir instead of the OS temp root.
func WithParent(dir string) Option {
	return func(o *options) {
		o.parent = dir
	}
}

// WithLogger sets the logger used to report release failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Acquire creates a new empty scratch directory with a unique name.
func Acquire(opts ...Option) (*Space, error) {
	o := &options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	parent := o.parent
	if parent == "" {
		parent = os.TempDir()
	}
	parent, err := filepath.Abs(parent)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "invalid scratch parent %s", o.parent)
	}

	fs := osfs.New("/")
	if err := fs.MkdirAll(parent, 0o755); err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create scratch parent"),
			"path", parent,
		)
	}

	path, err := util.TempDir(fs, parent, prefix)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create scratch directory"),
			"path", parent,
		)
	}

	o.logger.WithFields(logging.PathFields("scratch_acquire", path)).Debug("Scratch space acquired")
	return &Space{fs: fs, path: path, logger: o.logger}, nil
}

// Path returns the absolute scratch directory.
func (s *Space) Path() string {
	return s.path
}

// Dir creates and returns a new uniquely named subdirectory.
func (s *Space) Dir(prefix string) (string, error) {
	dir := filepath.Join(s.path, prefix+"-"+uuid.NewString())
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create scratch subdirectory"),
			"path", dir,
		)
	}
	return dir, nil
}

// File returns a path for a new file inside the space without creating it.
func (s *Space) File(name string) string {
	return filepath.Join(s.path, uuid.NewString()+"-"+filepath.Base(name))
}

// Release removes the space and everything in it. It is safe to call more
// than once. Failures are logged, not returned.
func (s *Space) Release() {
	s.once.Do(func() {
		if err := util.RemoveAll(s.fs, s.path); err != nil {
			s.logger.WithFields(logging.PathFields("scratch_release", s.path)).
				WithError(err).Warn("Failed to remove scratch space")
			return
		}
		s.logger.WithFields(logging.PathFields("scratch_release", s.path)).Debug("Scratch space released")
	})
}
