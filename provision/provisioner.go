package provision

import (
	"context"
	"runtime"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/archive"
	"github.com/jhol/marlintool/config"
	"github.com/jhol/marlintool/download"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/git"
	"github.com/jhol/marlintool/logging"
	"github.com/jhol/marlintool/snapshot"
	"github.com/jhol/marlintool/toolchain"
)

// Scratch hands out private working directories.
type Scratch interface {
	Dir(prefix string) (string, error)
}

// Downloads returns the cached path of a remote file. Require reports a
// missing download tool without touching the cache.
type Downloads interface {
	Fetch(ctx context.Context, url, name string) (string, error)
	Require() error
}

// Mirrors provides up to date mirrors and working clones of them.
type Mirrors interface {
	GetMirror(ctx context.Context, url string) (string, error)
	Checkout(ctx context.Context, mirrorPath, branch string) (string, error)
}

// Snapshots backs up and restores the live configuration.
type Snapshots interface {
	Backup(name string) error
	Restore(name string) error
}

// Builder runs the toolchain against the sketch.
type Builder interface {
	Verify(ctx context.Context, sketch string) error
	Upload(ctx context.Context, sketch, port string) error
}

// Provisioner runs the provisioning steps described by a Config.
type Provisioner struct {
	cfg       *config.Config
	fs        billy.Filesystem
	scratch   Scratch
	downloads Downloads
	mirrors   Mirrors
	extractor archive.Extractor
	snapshots Snapshots
	builder   Builder
	remoteOps git.RemoteOperations
	logger    logrus.FieldLogger
	goos      string
	goarch    string
	now       func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithExtractor sets the archive extractor. Default: archive.CommandExtractor.
func WithExtractor(e archive.Extractor) Option {
	return func(p *Provisioner) {
		p.extractor = e
	}
}

// WithSnapshots sets the snapshot store. Default: a snapshot.Store built
// from the configuration.
func WithSnapshots(s Snapshots) Option {
	return func(p *Provisioner) {
		p.snapshots = s
	}
}

// WithBuilder sets the toolchain runner. Default: a toolchain.Runner built
// from the configuration.
func WithBuilder(b Builder) Option {
	return func(p *Provisioner) {
		p.builder = b
	}
}

// WithRemoteOperations sets the git network operations used to refresh
// the firmware working copy.
func WithRemoteOperations(ops git.RemoteOperations) Option {
	return func(p *Provisioner) {
		p.remoteOps = ops
	}
}

// WithPlatform overrides the platform used to pick the toolchain download.
func WithPlatform(goos, goarch string) Option {
	return func(p *Provisioner) {
		p.goos = goos
		p.goarch = goarch
	}
}

// WithClock sets the time source used for generated snapshot names.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// New creates a Provisioner. cfg must have been resolved to absolute paths.
func New(cfg *config.Config, scratch Scratch, downloads Downloads, mirrors Mirrors, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:       cfg,
		fs:        osfs.New("/"),
		scratch:   scratch,
		downloads: downloads,
		mirrors:   mirrors,
		remoteOps: git.DefaultRemoteOperations(),
		logger:    logging.Discard(),
		goos:      runtime.GOOS,
		goarch:    runtime.GOARCH,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.extractor == nil {
		p.extractor = archive.NewCommandExtractor(nil)
	}
	if p.snapshots == nil {
		p.snapshots = snapshot.NewStore(p.fs, cfg.Snapshots.Dir, cfg.Firmware.LiveConfigDir(),
			snapshot.WithFiles(cfg.Snapshots.Files...),
			snapshot.WithLogger(p.logger),
		)
	}
	if p.builder == nil {
		p.builder = toolchain.NewRunner(cfg.Toolchain.Dir, cfg.Toolchain.Executable,
			toolchain.WithBoard(cfg.Build.Board),
			toolchain.WithBuildDir(cfg.Build.Dir),
			toolchain.WithLogger(p.logger),
		)
	}
	return p
}

// Setup installs the toolchain, the dependencies and the hardware
// definition, in that order. Missing external tools are reported before
// anything is downloaded.
func (p *Provisioner) Setup(ctx context.Context) error {
	if err := p.CheckPrerequisites(); err != nil {
		return err
	}
	if err := p.InstallToolchain(ctx); err != nil {
		return err
	}
	if err := p.InstallDependencies(ctx); err != nil {
		return err
	}
	return p.InstallHardware(ctx)
}

// CheckPrerequisites verifies that the download tool and the extractor for
// the configured toolchain archive are available.
func (p *Provisioner) CheckPrerequisites() error {
	url, err := p.cfg.Toolchain.URL(p.goos, p.goarch)
	if err != nil {
		return err
	}
	if err := p.downloads.Require(); err != nil {
		return err
	}
	name, err := download.Name(url)
	if err != nil {
		return err
	}
	return p.extractor.Require(name)
}

// Build verifies or uploads the firmware sketch.
func (p *Provisioner) Build(ctx context.Context, mode toolchain.Mode, port string) error {
	if err := p.cfg.RequireFirmware(); err != nil {
		return err
	}
	sketch := p.cfg.Firmware.SketchPath()
	switch mode {
	case toolchain.ModeVerify:
		return p.builder.Verify(ctx, sketch)
	case toolchain.ModeUpload:
		return p.builder.Upload(ctx, sketch, port)
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown build mode %q", mode)
	}
}
