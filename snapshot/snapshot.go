// Package snapshot stores named copies of the firmware configuration files.
//
// A snapshot is a directory under the snapshot root holding one copy of
// each configured file. Backup refuses to write anything unless every
// source file exists, and Restore refuses to overwrite anything unless the
// snapshot is complete, so neither leaves a half-written set behind.
package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/logging"
)

// DefaultFiles are the configuration files captured by a snapshot.
var DefaultFiles = []string{"Configuration.h", "Configuration_adv.h"}

// TimestampLayout is the layout of generated snapshot names.
const TimestampLayout = "20060102-150405"

// Info describes a stored snapshot.
type Info struct {
	Name    string
	ModTime time.Time
}

// Store backs up and restores the live configuration files.
type Store struct {
	fs     billy.Filesystem
	root   string
	live   string
	files  []string
	logger logrus.FieldLogger
}

// Option configures a Store.
type Option func(*Store)

// WithFiles overrides the captured file names.
func WithFiles(files ...string) Option {
	return func(s *Store) {
		s.files = files
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store keeping snapshots under root and restoring them
// into the live directory.
func NewStore(fs billy.Filesystem, root, live string, opts ...Option) *Store {
	s := &Store{
		fs:     fs,
		root:   root,
		live:   live,
		files:  DefaultFiles,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NameAt returns the generated snapshot name for t.
func NameAt(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ValidateName reports whether name can be used as a snapshot name.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "invalid snapshot name %q", name),
			"snapshot", name,
		)
	}
	return nil
}

// Path returns the directory of the snapshot name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Backup copies the live configuration files into the snapshot name,
// overwriting a snapshot of the same name.
//
// Returns CodeConfigFileMissing, without writing anything, if a live file
// is missing.
func (s *Store) Backup(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.requireFiles(s.live); err != nil {
		return err
	}

	dir := s.Path(name)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create snapshot directory"),
			"path", dir,
		)
	}

	for _, f := range s.files {
		if err := copyAtomic(s.fs, filepath.Join(s.live, f), filepath.Join(dir, f)); err != nil {
			return err
		}
	}

	s.logger.WithFields(logging.PathFields("snapshot_backup", dir)).
		WithField(logging.FieldName, name).Info("Configuration backed up")
	return nil
}

// Restore copies the files of snapshot name over the live configuration.
//
// Returns CodeSnapshotNotFound if the snapshot does not exist and
// CodeConfigFileMissing if it is incomplete. Nothing is written in either
// case.
func (s *Store) Restore(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	dir := s.Path(name)
	info, err := s.fs.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.WithContext(
			errors.WithContext(
				errors.Newf(errors.CodeSnapshotNotFound, "snapshot %s not found", name),
				"snapshot", name,
			),
			"path", dir,
		)
	}
	if err := s.requireFiles(dir); err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.live, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create configuration directory"),
			"path", s.live,
		)
	}
	for _, f := range s.files {
		if err := copyAtomic(s.fs, filepath.Join(dir, f), filepath.Join(s.live, f)); err != nil {
			return err
		}
	}

	s.logger.WithFields(logging.PathFields("snapshot_restore", dir)).
		WithField(logging.FieldName, name).Info("Configuration restored")
	return nil
}

// List returns the stored snapshots sorted by name. A missing root yields
// an empty list.
func (s *Store) List() ([]Info, error) {
	infos, err := s.fs.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to list snapshots"),
			"path", s.root,
		)
	}

	var out []Info
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		out = append(out, Info{Name: info.Name(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the snapshot name.
//
// Returns CodeSnapshotNotFound if it does not exist.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	dir := s.Path(name)
	if _, err := s.fs.Stat(dir); err != nil {
		return errors.WithContext(
			errors.Newf(errors.CodeSnapshotNotFound, "snapshot %s not found", name),
			"snapshot", name,
		)
	}
	if err := util.RemoveAll(s.fs, dir); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to delete snapshot"),
			"path", dir,
		)
	}

	s.logger.WithFields(logging.PathFields("snapshot_delete", dir)).Info("Snapshot deleted")
	return nil
}

func (s *Store) requireFiles(dir string) error {
	for _, f := range s.files {
		path := filepath.Join(dir, f)
		info, err := s.fs.Stat(path)
		if err != nil || info.IsDir() {
			return errors.WithContext(
				errors.Newf(errors.CodeConfigFileMissing, "configuration file %s is missing", path),
				"path", path,
			)
		}
	}
	return nil
}

// copyAtomic copies src to a temporary file next to dst and renames it
// into place.
func copyAtomic(fs billy.Filesystem, src, dst string) error {
	data, err := util.ReadFile(fs, src)
	if err != nil {
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to read file"), "path", src)
	}

	tmp := dst + ".tmp"
	if err := util.WriteFile(fs, tmp, data, 0o644); err != nil {
		_ = fs.Remove(tmp)
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to write file"), "path", tmp)
	}
	if err := fs.Rename(tmp, dst); err != nil {
		_ = fs.Remove(tmp)
		return errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to replace file"), "path", dst)
	}
	return nil
}
