package main

import (
	"fmt"

	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/provision"
	"github.com/jhol/marlintool/toolchain"
)

// Globals are flags accepted by every command.
type Globals struct {
	Config   string `short:"c" type:"path" help:"Configuration file (default: ./marlintool.cue)."`
	LogLevel string `help:"Log level: debug, info, warn or error."`
	LogFile  string `type:"path" help:"Write JSON logs to this file instead of stderr."`
	CacheDir string `type:"path" help:"Override the cache directory."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Setup       SetupCmd       `cmd:"" help:"Install the toolchain, libraries and hardware definition."`
	GetFirmware GetFirmwareCmd `cmd:"" name:"get-firmware" help:"Clone the firmware repository."`
	Refresh     RefreshCmd     `cmd:"" help:"Update the firmware, keeping the configuration files."`
	Backup      BackupCmd      `cmd:"" help:"Save the configuration files as a named snapshot."`
	Restore     RestoreCmd     `cmd:"" help:"Restore the configuration files from a snapshot."`
	Snapshots   SnapshotsCmd   `cmd:"" help:"List configuration snapshots."`
	Verify      VerifyCmd      `cmd:"" help:"Compile the firmware."`
	Upload      UploadCmd      `cmd:"" help:"Compile the firmware and upload it to the board."`
	Cache       CacheCmd       `cmd:"" help:"Inspect or purge the download and mirror cache."`
}

// SetupCmd installs the toolchain, the dependencies and the hardware definition.
type SetupCmd struct{}

func (c *SetupCmd) Run(app *App) error {
	return app.withProvisioner(func(p *provision.Provisioner) error {
		return p.Setup(app.ctx)
	})
}

// GetFirmwareCmd makes the initial firmware clone.
type GetFirmwareCmd struct{}

func (c *GetFirmwareCmd) Run(app *App) error {
	return app.withProvisioner(func(p *provision.Provisioner) error {
		return p.FetchFirmware(app.ctx)
	})
}

// RefreshCmd updates the firmware around a configuration snapshot.
type RefreshCmd struct {
	Name string `help:"Snapshot name for the saved configuration (default: UTC timestamp)."`
}

func (c *RefreshCmd) Run(app *App) error {
	return app.withProvisioner(func(p *provision.Provisioner) error {
		name, err := p.Refresh(app.ctx, c.Name)
		if err != nil {
			return err
		}
		if name != "" {
			fmt.Fprintf(app.stdout, "configuration saved as snapshot %s\n", name)
		}
		return nil
	})
}

// BackupCmd saves the live configuration files as a snapshot.
type BackupCmd struct {
	Name string `arg:"" help:"Snapshot name."`
}

func (c *BackupCmd) Run(app *App) error {
	return app.snapshots().Backup(c.Name)
}

// RestoreCmd copies a snapshot back over the live configuration files.
type RestoreCmd struct {
	Name string `arg:"" help:"Snapshot name."`
}

func (c *RestoreCmd) Run(app *App) error {
	return app.snapshots().Restore(c.Name)
}

// SnapshotsCmd lists the saved snapshots.
type SnapshotsCmd struct {
	Format string `short:"o" enum:"text,json,yaml" default:"text" help:"Output format: text, json or yaml."`
}

func (c *SnapshotsCmd) Run(app *App) error {
	list, err := app.snapshots().List()
	if err != nil {
		return err
	}
	return writeSnapshots(app.stdout, c.Format, list)
}

// VerifyCmd compiles the firmware sketch.
type VerifyCmd struct{}

func (c *VerifyCmd) Run(app *App) error {
	return app.builder().Build(app.ctx, toolchain.ModeVerify, "")
}

// UploadCmd compiles the sketch and flashes it to the board.
type UploadCmd struct {
	Port string `required:"" help:"Serial port of the board, e.g. /dev/ttyUSB0."`
}

func (c *UploadCmd) Run(app *App) error {
	return app.builder().Build(app.ctx, toolchain.ModeUpload, c.Port)
}

// CacheCmd groups the cache subcommands.
type CacheCmd struct {
	List  CacheListCmd  `cmd:"" default:"1" help:"List cache entries."`
	Purge CachePurgeCmd `cmd:"" help:"Remove one cache entry, or everything."`
}

// CacheListCmd prints the cache index.
type CacheListCmd struct {
	Format string `short:"o" enum:"text,json,yaml" default:"text" help:"Output format: text, json or yaml."`
}

func (c *CacheListCmd) Run(app *App) error {
	return app.withCache(func(root *cacheroot.Root) error {
		entries, err := root.Entries()
		if err != nil {
			return err
		}
		return writeCacheEntries(app.stdout, c.Format, entries)
	})
}

// CachePurgeCmd removes one entry, every entry matching a pattern, or the whole cache.
type CachePurgeCmd struct {
	Name string `arg:"" optional:"" help:"Entry name or glob pattern to remove; everything when omitted."`
}

func (c *CachePurgeCmd) Run(app *App) error {
	return app.withCache(func(root *cacheroot.Root) error {
		switch {
		case c.Name == "":
			return root.PurgeAll()
		case cacheroot.IsPattern(c.Name):
			removed, err := root.PurgeMatching(c.Name)
			for _, name := range removed {
				fmt.Fprintf(app.stdout, "purged %s\n", name)
			}
			return err
		default:
			return root.Purge(c.Name)
		}
	})
}
