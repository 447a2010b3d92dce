package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhol/marlintool/archive"
	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/config"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/exec"
	"github.com/jhol/marlintool/git"
	"github.com/jhol/marlintool/git/cache"
	"github.com/jhol/marlintool/git/testutil"
	"github.com/jhol/marlintool/scratch"
	"github.com/jhol/marlintool/toolchain"
)

const toolchainURL = "https://downloads.arduino.cc/arduino-1.8.19-linux64.tar.xz"

type fakeDownloads struct {
	dir        string
	calls      []string
	err        error
	requireErr error
}

func (f *fakeDownloads) Require() error {
	return f.requireErr
}

func (f *fakeDownloads) Fetch(_ context.Context, url, _ string) (string, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, filepath.Base(url))
	return path, os.WriteFile(path, []byte("archive"), 0o644)
}

// fakeExtractor lays out a toolchain with one top-level directory.
type fakeExtractor struct {
	version string
	err     error
}

func (f *fakeExtractor) Require(string) error {
	return nil
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, dir string) error {
	if f.err != nil {
		return f.err
	}
	top := filepath.Join(dir, "arduino-"+f.version)
	if err := os.MkdirAll(filepath.Join(top, "libraries"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(top, "arduino"), []byte(f.version), 0o755)
}

type fakeBuilder struct {
	mode   toolchain.Mode
	sketch string
	port   string
}

func (f *fakeBuilder) Verify(_ context.Context, sketch string) error {
	f.mode, f.sketch = toolchain.ModeVerify, sketch
	return nil
}

func (f *fakeBuilder) Upload(_ context.Context, sketch, port string) error {
	f.mode, f.sketch, f.port = toolchain.ModeUpload, sketch, port
	return nil
}

type failingFetchOps struct {
	git.RemoteOperations
}

func (failingFetchOps) Fetch(context.Context, *git.Repository, git.FetchOptions) error {
	return errors.New(errors.CodeNetwork, "connection reset")
}

type fixture struct {
	base      string
	cfg       *config.Config
	space     *scratch.Space
	downloads *fakeDownloads
	extractor *fakeExtractor
	mirrors   *cache.MirrorCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	cfg, err := config.Defaults(base)
	require.NoError(t, err)
	cfg.Toolchain.URLs = map[string]string{"linux/amd64": toolchainURL}

	root, err := cacheroot.Open(cfg.Cache.Dir)
	require.NoError(t, err)
	space, err := scratch.Acquire(scratch.WithParent(filepath.Join(base, "tmp")))
	require.NoError(t, err)
	t.Cleanup(space.Release)

	downloads := &fakeDownloads{dir: t.TempDir()}
	return &fixture{
		base:      base,
		cfg:       cfg,
		space:     space,
		downloads: downloads,
		extractor: &fakeExtractor{version: "1.8.19"},
		mirrors:   cache.NewMirrorCache(root, space),
	}
}

func (f *fixture) provisioner(opts ...Option) *Provisioner {
	opts = append([]Option{
		WithExtractor(f.extractor),
		WithPlatform("linux", "amd64"),
	}, opts...)
	return New(f.cfg, f.space, f.downloads, f.mirrors, opts...)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to be absent", path)
}

func TestSetup(t *testing.T) {
	f := newFixture(t)

	u8glib := testutil.NewUpstream(t, "U8glib.git")
	u8glib.CommitFile("U8glib.h", "// u8g", "Add header")

	tmc := testutil.NewUpstream(t, "TMCStepper")
	tmc.Branch("v0.7")
	tmc.CommitFile("src/TMCStepper.h", "// tmc", "Add source")

	anet := testutil.NewUpstream(t, "anet-board")
	anet.CommitFile("hardware/boards.txt", "anet.name=Anet V1.0", "Add board")

	f.cfg.Dependencies = []config.Dependency{
		{Name: "U8glib", URL: u8glib.Path, Subpath: "."},
		{Name: "TMCStepper", URL: tmc.Path, Branch: "v0.7", Subpath: "src"},
	}
	f.cfg.Hardware = &config.Dependency{Name: "anet", URL: anet.Path, Subpath: "hardware"}

	require.NoError(t, f.provisioner().Setup(context.Background()))

	dir := f.cfg.Toolchain.Dir
	assert.Equal(t, "1.8.19", readFile(t, filepath.Join(dir, "arduino")))
	assert.Equal(t, []string{toolchainURL}, f.downloads.calls)

	assert.Equal(t, "// u8g", readFile(t, filepath.Join(dir, "libraries", "U8glib", "U8glib.h")))
	assertMissing(t, filepath.Join(dir, "libraries", "U8glib", ".git"))
	assert.Equal(t, "// tmc", readFile(t, filepath.Join(dir, "libraries", "TMCStepper", "TMCStepper.h")))
	assert.Equal(t, "anet.name=Anet V1.0", readFile(t, filepath.Join(dir, "hardware", "anet", "boards.txt")))

	// only the subpath is installed
	assertMissing(t, filepath.Join(dir, "libraries", "TMCStepper", "README.md"))

	f.space.Release()
	assertMissing(t, f.space.Path())
}

func TestSetupReplacesPreviousToolchain(t *testing.T) {
	f := newFixture(t)
	stale := filepath.Join(f.cfg.Toolchain.Dir, "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	require.NoError(t, f.provisioner().InstallToolchain(context.Background()))

	assertMissing(t, stale)
	assert.Equal(t, "1.8.19", readFile(t, filepath.Join(f.cfg.Toolchain.Dir, "arduino")))
}

func TestInstallToolchainFailureKeepsExisting(t *testing.T) {
	f := newFixture(t)
	existing := filepath.Join(f.cfg.Toolchain.Dir, "arduino")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("1.8.13"), 0o755))

	f.extractor.err = errors.New(errors.CodeExecutionFailed, "tar failed")
	err := f.provisioner().InstallToolchain(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeExecutionFailed, errors.GetCode(err))
	assert.Equal(t, "1.8.13", readFile(t, existing))

	f.extractor.err = nil
	f.downloads.err = errors.New(errors.CodeNetwork, "download failed")
	err = f.provisioner().InstallToolchain(context.Background())
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, "1.8.13", readFile(t, existing))
}

func TestInstallToolchainUnsupportedPlatform(t *testing.T) {
	f := newFixture(t)
	err := f.provisioner(WithPlatform("plan9", "386")).InstallToolchain(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
	assert.Empty(t, f.downloads.calls)
}

func TestSetupMissingToolDownloadsNothing(t *testing.T) {
	f := newFixture(t)
	lib := testutil.NewUpstream(t, "U8glib")
	f.cfg.Dependencies = []config.Dependency{{Name: "U8glib", URL: lib.Path}}

	executor := exec.New(exec.WithLookPath(func(name string) (string, error) {
		return "", fmt.Errorf("%s: not found", name)
	}))
	p := f.provisioner(WithExtractor(archive.NewCommandExtractor(executor)))

	err := p.Setup(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodePrerequisiteMissing, errors.GetCode(err))
	assert.Contains(t, err.Error(), "tar")
	assert.Empty(t, f.downloads.calls)
	assertMissing(t, filepath.Join(f.cfg.Cache.Dir, "U8glib"))
	assertMissing(t, f.cfg.Toolchain.Dir)
}

func TestSetupMissingDownloadTool(t *testing.T) {
	f := newFixture(t)
	f.downloads.requireErr = errors.New(errors.CodePrerequisiteMissing, `required tool "curl" is not installed`)

	err := f.provisioner().Setup(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodePrerequisiteMissing, errors.GetCode(err))
	assert.Empty(t, f.downloads.calls)
}

func TestInstallDependencyMissingSubpath(t *testing.T) {
	f := newFixture(t)
	lib := testutil.NewUpstream(t, "lib")
	f.cfg.Dependencies = []config.Dependency{{Name: "lib", URL: lib.Path, Subpath: "src"}}

	err := f.provisioner().InstallDependencies(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.Contains(t, err.Error(), "src")
	assertMissing(t, filepath.Join(f.cfg.Toolchain.LibrariesDir(), "lib"))
}

func TestInstallDependencyEscapingSubpath(t *testing.T) {
	f := newFixture(t)
	lib := testutil.NewUpstream(t, "lib")
	f.cfg.Dependencies = []config.Dependency{{Name: "lib", URL: lib.Path, Subpath: "../.."}}

	err := f.provisioner().InstallDependencies(context.Background())
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestInstallHardwareOptional(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.provisioner().InstallHardware(context.Background()))
	assertMissing(t, f.cfg.Toolchain.HardwareDir())
}

// newFirmware creates an upstream laid out like Marlin on branch.
func newFirmware(t *testing.T, branch string) *testutil.Upstream {
	t.Helper()
	fw := testutil.NewUpstream(t, "Marlin.git")
	fw.Branch(branch)
	fw.WriteFile("Marlin/Configuration.h", "#define MOTHERBOARD BOARD_RAMPS_14_EFB\n")
	fw.WriteFile("Marlin/Configuration_adv.h", "#define ADV 0\n")
	fw.WriteFile("Marlin/Marlin.ino", "// sketch\n")
	fw.Commit("Import Marlin")
	return fw
}

func TestFetchFirmware(t *testing.T) {
	f := newFixture(t)
	fw := newFirmware(t, "bugfix-2.1.x")
	f.cfg.Firmware.URL = fw.Path
	f.cfg.Firmware.Branch = "bugfix-2.1.x"

	p := f.provisioner()
	require.NoError(t, p.FetchFirmware(context.Background()))

	dir := f.cfg.Firmware.Dir
	assert.Equal(t, "// sketch\n", readFile(t, filepath.Join(dir, "Marlin", "Marlin.ino")))

	repo, err := git.Open(dir)
	require.NoError(t, err)
	origin, err := repo.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, []string{fw.Path}, origin.URLs)
	branch, err := repo.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "bugfix-2.1.x", branch)

	// a second fetch leaves the working copy alone
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.txt"), []byte("mine"), 0o644))
	require.NoError(t, p.FetchFirmware(context.Background()))
	assert.Equal(t, "mine", readFile(t, filepath.Join(dir, "local.txt")))
}

func TestFetchFirmwareRequiresURL(t *testing.T) {
	f := newFixture(t)
	err := f.provisioner().FetchFirmware(context.Background())
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))

	_, err = f.provisioner().Refresh(context.Background(), "")
	assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
}

func TestRefreshKeepsConfiguration(t *testing.T) {
	f := newFixture(t)
	fw := newFirmware(t, "bugfix-2.1.x")
	f.cfg.Firmware.URL = fw.Path
	f.cfg.Firmware.Branch = "bugfix-2.1.x"

	clock := func() time.Time { return time.Date(2024, 3, 9, 16, 4, 5, 0, time.UTC) }
	p := f.provisioner(WithClock(clock))
	require.NoError(t, p.FetchFirmware(context.Background()))

	live := f.cfg.Firmware.LiveConfigDir()
	mine := "#define MOTHERBOARD BOARD_ANET_10\n"
	require.NoError(t, os.WriteFile(filepath.Join(live, "Configuration.h"), []byte(mine), 0o644))

	fw.WriteFile("Marlin/Configuration.h", "#define MOTHERBOARD BOARD_RAMPS_14_EFB\n#define NEW_OPTION\n")
	fw.WriteFile("Marlin/src/feature.cpp", "// new feature\n")
	head := fw.Commit("Upstream update")

	name, err := p.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "20240309-160405", name)

	dir := f.cfg.Firmware.Dir
	assert.Equal(t, "// new feature\n", readFile(t, filepath.Join(dir, "Marlin", "src", "feature.cpp")))
	assert.Equal(t, mine, readFile(t, filepath.Join(live, "Configuration.h")))
	assert.Equal(t, mine, readFile(t, filepath.Join(f.cfg.Snapshots.Dir, name, "Configuration.h")))

	repo, err := git.Open(dir)
	require.NoError(t, err)
	got, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, head, got)
}

func TestRefreshWithoutFirmwareFetches(t *testing.T) {
	f := newFixture(t)
	fw := newFirmware(t, "bugfix-2.1.x")
	f.cfg.Firmware.URL = fw.Path
	f.cfg.Firmware.Branch = "bugfix-2.1.x"

	name, err := f.provisioner().Refresh(context.Background(), "named")
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, "// sketch\n", readFile(t, filepath.Join(f.cfg.Firmware.Dir, "Marlin", "Marlin.ino")))
	assertMissing(t, filepath.Join(f.cfg.Snapshots.Dir, "named"))
}

func TestRefreshFetchFailureRestoresConfiguration(t *testing.T) {
	f := newFixture(t)
	fw := newFirmware(t, "bugfix-2.1.x")
	f.cfg.Firmware.URL = fw.Path
	f.cfg.Firmware.Branch = "bugfix-2.1.x"
	require.NoError(t, f.provisioner().FetchFirmware(context.Background()))

	live := filepath.Join(f.cfg.Firmware.LiveConfigDir(), "Configuration.h")
	require.NoError(t, os.WriteFile(live, []byte("mine"), 0o644))

	p := f.provisioner(WithRemoteOperations(failingFetchOps{git.DefaultRemoteOperations()}))
	name, err := p.Refresh(context.Background(), "before-update")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNetwork, errors.GetCode(err))
	assert.Equal(t, "before-update", name)
	assert.Equal(t, "mine", readFile(t, live))
}

func TestRefreshMissingConfigurationWritesNothing(t *testing.T) {
	f := newFixture(t)
	fw := newFirmware(t, "bugfix-2.1.x")
	f.cfg.Firmware.URL = fw.Path
	f.cfg.Firmware.Branch = "bugfix-2.1.x"
	p := f.provisioner()
	require.NoError(t, p.FetchFirmware(context.Background()))
	require.NoError(t, os.Remove(filepath.Join(f.cfg.Firmware.LiveConfigDir(), "Configuration_adv.h")))

	_, err := p.Refresh(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigFileMissing, errors.GetCode(err))
	assertMissing(t, filepath.Join(f.cfg.Snapshots.Dir, "x"))
}

func TestBuild(t *testing.T) {
	f := newFixture(t)
	f.cfg.Firmware.URL = "https://github.com/MarlinFirmware/Marlin.git"
	builder := &fakeBuilder{}
	p := f.provisioner(WithBuilder(builder))

	require.NoError(t, p.Build(context.Background(), toolchain.ModeUpload, "/dev/ttyUSB0"))
	assert.Equal(t, toolchain.ModeUpload, builder.mode)
	assert.Equal(t, filepath.Join(f.base, "Marlin", "Marlin", "Marlin.ino"), builder.sketch)
	assert.Equal(t, "/dev/ttyUSB0", builder.port)

	require.NoError(t, p.Build(context.Background(), toolchain.ModeVerify, ""))
	assert.Equal(t, toolchain.ModeVerify, builder.mode)

	err := p.Build(context.Background(), toolchain.Mode("flash"), "")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
