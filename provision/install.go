package provision

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/util"

	"github.com/jhol/marlintool/config"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/fsutil"
	"github.com/jhol/marlintool/logging"
)

// InstallToolchain downloads the toolchain archive for the current
// platform, extracts it and replaces the toolchain directory with it. An
// archive holding a single top-level directory is installed from inside
// that directory.
func (p *Provisioner) InstallToolchain(ctx context.Context) error {
	url, err := p.cfg.Toolchain.URL(p.goos, p.goarch)
	if err != nil {
		return err
	}

	archivePath, err := p.downloads.Fetch(ctx, url, "")
	if err != nil {
		return err
	}

	dir, err := p.scratch.Dir("toolchain")
	if err != nil {
		return err
	}
	if err := p.extractor.Extract(ctx, archivePath, dir); err != nil {
		return err
	}

	src, err := p.archiveRoot(dir)
	if err != nil {
		return err
	}

	dst := p.cfg.Toolchain.Dir
	if err := fsutil.Move(p.fs, src, dst); err != nil {
		return err
	}

	p.logger.WithFields(logging.PathFields("toolchain_install", dst)).
		WithField(logging.FieldURL, url).Info("Toolchain installed")
	return nil
}

// archiveRoot returns the single top-level directory of an extracted
// archive, or dir itself.
func (p *Provisioner) archiveRoot(dir string) (string, error) {
	entries, err := p.fs.ReadDir(dir)
	if err != nil {
		return "", errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to read extracted archive"),
			"path", dir,
		)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	if len(entries) == 0 {
		return "", errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "toolchain archive extracted to %s is empty", dir),
			"path", dir,
		)
	}
	return dir, nil
}

// InstallDependencies installs every configured library into the
// toolchain's libraries directory.
func (p *Provisioner) InstallDependencies(ctx context.Context) error {
	for _, dep := range p.cfg.Dependencies {
		if err := p.installRepo(ctx, dep, p.cfg.Toolchain.LibrariesDir()); err != nil {
			return err
		}
	}
	return nil
}

// InstallHardware installs the hardware definition, if one is configured.
func (p *Provisioner) InstallHardware(ctx context.Context) error {
	if p.cfg.Hardware == nil {
		p.logger.Debug("No hardware definition configured")
		return nil
	}
	return p.installRepo(ctx, *p.cfg.Hardware, p.cfg.Toolchain.HardwareDir())
}

// installRepo checks dep out of its mirror and moves the configured
// subpath to parent/<name>, replacing any previous install. The rest of
// the working clone stays in scratch.
func (p *Provisioner) installRepo(ctx context.Context, dep config.Dependency, parent string) error {
	mirror, err := p.mirrors.GetMirror(ctx, dep.URL)
	if err != nil {
		return err
	}
	clone, err := p.mirrors.Checkout(ctx, mirror, dep.Branch)
	if err != nil {
		return err
	}

	src, err := subpath(clone, dep.Subpath)
	if err != nil {
		return errors.WithContext(err, "dependency", dep.Name)
	}
	info, err := p.fs.Stat(src)
	if err != nil || !info.IsDir() {
		err := errors.Newf(errors.CodeNotFound, "subpath %s not found in %s", dep.Subpath, dep.URL)
		return errors.WithContext(errors.WithContext(err, "dependency", dep.Name), "url", dep.URL)
	}
	if src == clone {
		if err := util.RemoveAll(p.fs, filepath.Join(clone, ".git")); err != nil && !os.IsNotExist(err) {
			return errors.WithContext(
				errors.Wrap(err, errors.CodeInternal, "failed to strip git metadata"),
				"path", clone,
			)
		}
	}

	dst := filepath.Join(parent, dep.Name)
	if err := fsutil.Move(p.fs, src, dst); err != nil {
		return err
	}

	p.logger.WithFields(logging.PathFields("dependency_install", dst)).
		WithField(logging.FieldName, dep.Name).
		WithField(logging.FieldURL, dep.URL).Info("Dependency installed")
	return nil
}

// subpath joins rel onto root and rejects results outside root.
func subpath(root, rel string) (string, error) {
	if rel == "" {
		rel = "."
	}
	if filepath.IsAbs(rel) {
		return "", errors.Newf(errors.CodeInvalidConfig, "subpath %s must be relative", rel)
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", errors.Newf(errors.CodeInvalidConfig, "subpath %s escapes the repository", rel)
	}
	return full, nil
}
