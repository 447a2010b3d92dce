package main

import (
	"context"
	"io"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/archive"
	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/config"
	"github.com/jhol/marlintool/download"
	"github.com/jhol/marlintool/exec"
	"github.com/jhol/marlintool/git/cache"
	"github.com/jhol/marlintool/provision"
	"github.com/jhol/marlintool/scratch"
	"github.com/jhol/marlintool/snapshot"
)

// App is bound into every command's Run method.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	logger *logrus.Logger
	stdout io.Writer
}

// withCache opens the cache root and holds its lock while fn runs.
func (a *App) withCache(fn func(*cacheroot.Root) error) error {
	root, err := cacheroot.Open(a.cfg.Cache.Dir,
		cacheroot.WithLogger(a.logger),
		cacheroot.WithLockTimeout(a.cfg.Cache.LockTimeoutDuration()),
	)
	if err != nil {
		return err
	}

	unlock, err := root.Lock(a.ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return fn(root)
}

// withProvisioner acquires a scratch space, locks the cache and wires a
// Provisioner for fn. The scratch space is released when fn returns,
// whatever the outcome.
func (a *App) withProvisioner(fn func(*provision.Provisioner) error) error {
	space, err := scratch.Acquire(
		scratch.WithParent(a.cfg.Scratch.Parent),
		scratch.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	defer space.Release()

	return a.withCache(func(root *cacheroot.Root) error {
		executor := exec.New()

		fetcher, err := download.NewFetcher(
			a.cfg.Download.Backend,
			a.cfg.Download.TimeoutDuration(),
			a.cfg.Download.UserAgent,
			executor,
		)
		if err != nil {
			return err
		}
		extractor, err := archive.New(a.cfg.Toolchain.Extractor, executor)
		if err != nil {
			return err
		}

		downloads := download.New(root, space, fetcher, download.WithLogger(a.logger))
		mirrors := cache.NewMirrorCache(root, space,
			cache.WithStrictUpdate(a.cfg.Mirror.StrictUpdate),
			cache.WithLogger(a.logger),
		)

		p := provision.New(a.cfg, space, downloads, mirrors,
			provision.WithExtractor(extractor),
			provision.WithSnapshots(a.snapshots()),
			provision.WithLogger(a.logger),
		)
		return fn(p)
	})
}

// builder returns a Provisioner that is only used for Build, which needs
// neither scratch space nor the cache.
func (a *App) builder() *provision.Provisioner {
	return provision.New(a.cfg, nil, nil, nil, provision.WithLogger(a.logger))
}

func (a *App) snapshots() *snapshot.Store {
	return snapshot.NewStore(osfs.New("/"), a.cfg.Snapshots.Dir, a.cfg.Firmware.LiveConfigDir(),
		snapshot.WithFiles(a.cfg.Snapshots.Files...),
		snapshot.WithLogger(a.logger),
	)
}
