// Package config loads the marlintool configuration.
//
// The configuration is a CUE file (marlintool.cue by default) unified with
// an embedded schema that supplies defaults for every optional field. The
// result is decoded once at startup into a Config value that is passed to
// each component; nothing reads configuration from globals.
package config

import (
	"path/filepath"
	"time"

	"github.com/jhol/marlintool/errors"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "marlintool.cue"

// Config is the decoded configuration.
type Config struct {
	Cache        CacheConfig     `json:"cache"`
	Scratch      ScratchConfig   `json:"scratch"`
	Download     DownloadConfig  `json:"download"`
	Mirror       MirrorConfig    `json:"mirror"`
	Toolchain    ToolchainConfig `json:"toolchain"`
	Firmware     FirmwareConfig  `json:"firmware"`
	Snapshots    SnapshotConfig  `json:"snapshots"`
	Build        BuildConfig     `json:"build"`
	Dependencies []Dependency    `json:"dependencies"`
	Hardware     *Dependency     `json:"hardware,omitempty"`
	Log          LogConfig       `json:"log"`
}

type CacheConfig struct {
	Dir         string `json:"dir"`
	LockTimeout string `json:"lock_timeout"`
}

type ScratchConfig struct {
	// Parent is the directory scratch space is created under. Empty means
	// the OS temp root.
	Parent string `json:"parent"`
}

type DownloadConfig struct {
	Backend   string `json:"backend"`
	Timeout   string `json:"timeout"`
	UserAgent string `json:"user_agent"`
}

type MirrorConfig struct {
	// StrictUpdate turns every mirror fetch failure into a hard error
	// instead of falling back to the stale mirror.
	StrictUpdate bool `json:"strict_update"`
}

type ToolchainConfig struct {
	Dir        string            `json:"dir"`
	Version    string            `json:"version"`
	Executable string            `json:"executable"`
	Extractor  string            `json:"extractor"`
	URLs       map[string]string `json:"urls"`
}

type FirmwareConfig struct {
	URL       string `json:"url"`
	Branch    string `json:"branch"`
	Remote    string `json:"remote"`
	Dir       string `json:"dir"`
	ConfigDir string `json:"config_dir"`
	Sketch    string `json:"sketch"`
}

type SnapshotConfig struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

type BuildConfig struct {
	Board string `json:"board"`
	Dir   string `json:"dir"`
}

// Dependency is a repository of which only Subpath is installed.
type Dependency struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Branch  string `json:"branch"`
	Subpath string `json:"subpath"`
}

type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// LockTimeoutDuration returns the parsed cache lock timeout.
func (c CacheConfig) LockTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.LockTimeout)
	return d
}

// TimeoutDuration returns the parsed per-download timeout.
func (c DownloadConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// URL returns the toolchain archive URL for a platform. An entry keyed
// "goos/goarch" wins over one keyed "goos".
func (c ToolchainConfig) URL(goos, goarch string) (string, error) {
	if u, ok := c.URLs[goos+"/"+goarch]; ok {
		return u, nil
	}
	if u, ok := c.URLs[goos]; ok {
		return u, nil
	}
	err := errors.Newf(errors.CodeInvalidConfig, "no toolchain download configured for %s/%s", goos, goarch)
	return "", errors.WithContext(err, "platform", goos+"/"+goarch)
}

// LibrariesDir is where dependency subpaths are installed.
func (c ToolchainConfig) LibrariesDir() string {
	return filepath.Join(c.Dir, "libraries")
}

// HardwareDir is where hardware definitions are installed.
func (c ToolchainConfig) HardwareDir() string {
	return filepath.Join(c.Dir, "hardware")
}

// LiveConfigDir is the directory holding the live configuration files.
func (c FirmwareConfig) LiveConfigDir() string {
	return filepath.Join(c.Dir, c.ConfigDir)
}

// SketchPath is the absolute path of the sketch handed to the toolchain.
func (c FirmwareConfig) SketchPath() string {
	return filepath.Join(c.Dir, c.Sketch)
}

// RequireFirmware reports an error when no firmware repository is configured.
func (c *Config) RequireFirmware() error {
	if c.Firmware.URL == "" {
		return errors.New(errors.CodeInvalidConfig, "firmware.url is required")
	}
	return nil
}

// Resolve makes every relative path absolute against base.
func (c *Config) Resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	c.Cache.Dir = abs(c.Cache.Dir)
	c.Scratch.Parent = abs(c.Scratch.Parent)
	c.Toolchain.Dir = abs(c.Toolchain.Dir)
	c.Firmware.Dir = abs(c.Firmware.Dir)
	c.Snapshots.Dir = abs(c.Snapshots.Dir)
	c.Build.Dir = abs(c.Build.Dir)
	c.Log.File = abs(c.Log.File)
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Cache.LockTimeout); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidConfig, "cache.lock_timeout %q is not a duration", c.Cache.LockTimeout)
	}
	if _, err := time.ParseDuration(c.Download.Timeout); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidConfig, "download.timeout %q is not a duration", c.Download.Timeout)
	}
	if len(c.Snapshots.Files) == 0 {
		return errors.New(errors.CodeInvalidConfig, "snapshots.files must not be empty")
	}
	for _, f := range c.Snapshots.Files {
		if f == "" || filepath.Base(f) != f {
			return errors.Newf(errors.CodeInvalidConfig, "snapshot file %q must be a plain file name", f)
		}
	}

	seen := make(map[string]bool, len(c.Dependencies))
	for _, dep := range c.Dependencies {
		if seen[dep.Name] {
			return errors.Newf(errors.CodeInvalidConfig, "dependency %q is listed twice", dep.Name)
		}
		seen[dep.Name] = true
	}
	return nil
}

// Overrides carries command-line values that take precedence over the file.
type Overrides struct {
	CacheDir string
	LogLevel string
	LogFile  string
}

// Apply copies every non-empty override into c. Relative paths are
// resolved against base.
func (c *Config) Apply(o Overrides, base string) {
	if o.CacheDir != "" {
		c.Cache.Dir = o.CacheDir
		if !filepath.IsAbs(c.Cache.Dir) {
			c.Cache.Dir = filepath.Join(base, c.Cache.Dir)
		}
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		c.Log.File = o.LogFile
		if !filepath.IsAbs(c.Log.File) {
			c.Log.File = filepath.Join(base, c.Log.File)
		}
	}
}
