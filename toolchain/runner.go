// Package toolchain drives the installed Arduino command line to verify or
// upload the firmware sketch.
package toolchain

import (
	"context"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/exec"
	"github.com/jhol/marlintool/logging"
)

// Mode selects what the toolchain does with the sketch.
type Mode string

const (
	ModeVerify Mode = "verify"
	ModeUpload Mode = "upload"
)

// Runner invokes the toolchain executable.
type Runner struct {
	executable string
	board      string
	buildDir   string
	executor   exec.Executor
	fs         billy.Filesystem
	logger     logrus.FieldLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithBoard sets the fully qualified board id passed as --board.
func WithBoard(board string) Option {
	return func(r *Runner) {
		r.board = board
	}
}

// WithBuildDir sets the build output directory.
func WithBuildDir(dir string) Option {
	return func(r *Runner) {
		r.buildDir = dir
	}
}

// WithExecutor sets the executor used to run the toolchain.
func WithExecutor(executor exec.Executor) Option {
	return func(r *Runner) {
		r.executor = executor
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner for executable inside the toolchain dir.
func NewRunner(dir, executable string, opts ...Option) *Runner {
	r := &Runner{
		executable: filepath.Join(dir, executable),
		executor:   exec.New(),
		fs:         osfs.New("/"),
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify compiles sketch without uploading it. Output is streamed to the
// terminal.
//
// A non-zero exit returns CodeBuildFailed; the exit code is available from
// exec.ExitCode.
func (r *Runner) Verify(ctx context.Context, sketch string) error {
	return r.run(ctx, ModeVerify, sketch, "")
}

// Upload compiles sketch and flashes it to the board on port.
func (r *Runner) Upload(ctx context.Context, sketch, port string) error {
	return r.run(ctx, ModeUpload, sketch, port)
}

func (r *Runner) run(ctx context.Context, mode Mode, sketch, port string) error {
	args, err := r.args(mode, sketch, port)
	if err != nil {
		return err
	}

	if r.buildDir != "" {
		if err := r.fs.MkdirAll(r.buildDir, 0o755); err != nil {
			return errors.WithContext(
				errors.Wrap(err, errors.CodeInternal, "failed to create build directory"),
				"path", r.buildDir,
			)
		}
	}

	r.logger.WithFields(logrus.Fields{
		logging.FieldAction: string(mode),
		logging.FieldPath:   sketch,
		"board":             r.board,
	}).Info("Running toolchain")

	if _, err := r.executor.WithContext(ctx).WithPassthrough().Run(args...); err != nil {
		return errors.WithContext(
			exec.Classify(err, errors.CodeBuildFailed, string(mode)+" of "+sketch+" failed"),
			"sketch", sketch,
		)
	}
	return nil
}

func (r *Runner) args(mode Mode, sketch, port string) ([]string, error) {
	if r.board == "" {
		return nil, errors.New(errors.CodeInvalidConfig, "build.board must be set to verify or upload")
	}

	args := []string{r.executable}
	switch mode {
	case ModeVerify:
		args = append(args, "--verify", "--board", r.board)
	case ModeUpload:
		if port == "" {
			return nil, errors.New(errors.CodeInvalidInput, "upload requires a port")
		}
		args = append(args, "--upload", "--board", r.board, "--port", port)
	}

	if r.buildDir != "" {
		args = append(args, "--pref", "build.path="+r.buildDir)
	}
	return append(args, sketch), nil
}
