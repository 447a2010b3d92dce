package provision

import (
	"context"
	"os"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/fsutil"
	"github.com/jhol/marlintool/git"
	"github.com/jhol/marlintool/logging"
	"github.com/jhol/marlintool/snapshot"
)

// FetchFirmware clones the firmware into its directory through the mirror
// cache and points the configured remote at the upstream URL. An existing
// firmware directory is left alone; Refresh updates it.
func (p *Provisioner) FetchFirmware(ctx context.Context) error {
	if err := p.cfg.RequireFirmware(); err != nil {
		return err
	}

	fw := p.cfg.Firmware
	present, err := p.exists(fw.Dir)
	if err != nil {
		return err
	}
	if present {
		p.logger.WithFields(logging.PathFields("firmware_fetch", fw.Dir)).
			Info("Firmware already present, use refresh to update it")
		return nil
	}

	mirror, err := p.mirrors.GetMirror(ctx, fw.URL)
	if err != nil {
		return err
	}
	clone, err := p.mirrors.Checkout(ctx, mirror, fw.Branch)
	if err != nil {
		return err
	}

	// The working clone's origin is the local mirror.
	repo, err := git.Open(clone, git.WithFilesystem(p.fs))
	if err != nil {
		return err
	}
	if err := repo.SetRemoteURL(fw.Remote, fw.URL); err != nil {
		return errors.WithContext(err, "path", clone)
	}
	if fw.Remote != git.DefaultRemote {
		if err := repo.RemoveRemote(git.DefaultRemote); err != nil {
			return errors.WithContext(err, "path", clone)
		}
	}

	if err := fsutil.Move(p.fs, clone, fw.Dir); err != nil {
		return err
	}

	p.logger.WithFields(logging.PathFields("firmware_fetch", fw.Dir)).
		WithField(logging.FieldURL, fw.URL).
		WithField("branch", fw.Branch).Info("Firmware fetched")
	return nil
}

// Refresh updates the firmware working copy to the tip of the configured
// upstream branch while keeping the user's configuration files. The live
// configuration is backed up as snapshot name (a UTC timestamp when empty),
// the branch is fetched and hard reset, then the snapshot is restored. It
// returns the snapshot name.
//
// When the firmware directory does not exist yet Refresh fetches it and
// returns an empty name.
func (p *Provisioner) Refresh(ctx context.Context, name string) (string, error) {
	if err := p.cfg.RequireFirmware(); err != nil {
		return "", err
	}

	fw := p.cfg.Firmware
	present, err := p.exists(fw.Dir)
	if err != nil {
		return "", err
	}
	if !present {
		return "", p.FetchFirmware(ctx)
	}

	if name == "" {
		name = snapshot.NameAt(p.now())
	}
	if err := p.snapshots.Backup(name); err != nil {
		return "", err
	}

	if err := p.update(ctx); err != nil {
		if restoreErr := p.snapshots.Restore(name); restoreErr != nil {
			p.logger.WithError(restoreErr).WithField(logging.FieldName, name).
				Warn("Failed to restore configuration after a failed refresh")
		}
		return name, err
	}

	if err := p.snapshots.Restore(name); err != nil {
		return name, err
	}

	p.logger.WithFields(logging.PathFields("firmware_refresh", fw.Dir)).
		WithField(logging.FieldName, name).Info("Firmware refreshed")
	return name, nil
}

func (p *Provisioner) update(ctx context.Context) error {
	fw := p.cfg.Firmware
	repo, err := git.Open(fw.Dir, git.WithFilesystem(p.fs), git.WithRemoteOperations(p.remoteOps))
	if err != nil {
		return err
	}
	if err := repo.Fetch(ctx, git.FetchOptions{RemoteName: fw.Remote, Prune: true}); err != nil {
		return err
	}
	return repo.ResetToRemote(fw.Remote, fw.Branch)
}

func (p *Provisioner) exists(path string) (bool, error) {
	_, err := p.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to stat path"), "path", path)
}
