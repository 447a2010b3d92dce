package archive

import (
	"context"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/exec"
)

// CommandExtractor runs tar or unzip.
type CommandExtractor struct {
	executor exec.Executor
	fs       billy.Filesystem
}

// NewCommandExtractor creates a CommandExtractor. A nil executor uses
// exec.New().
func NewCommandExtractor(executor exec.Executor) *CommandExtractor {
	if executor == nil {
		executor = exec.New()
	}
	return &CommandExtractor{executor: executor, fs: osfs.New("/")}
}

// Require implements Extractor by looking up the tool archive needs.
func (e *CommandExtractor) Require(archive string) error {
	format, err := Detect(archive)
	if err != nil {
		return err
	}
	return exec.RequireFor(e.executor, tool(format))
}

// Extract implements Extractor.
func (e *CommandExtractor) Extract(ctx context.Context, archive, dir string) error {
	format, err := Detect(archive)
	if err != nil {
		return err
	}

	archive, dir, err = absPaths(archive, dir)
	if err != nil {
		return err
	}
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.WithContext(
			errors.Wrap(err, errors.CodeInternal, "failed to create extraction directory"),
			"path", dir,
		)
	}

	var args []string
	if format == FormatZip {
		args = []string{tool(format), "-q", "-o", archive, "-d", dir}
	} else {
		args = []string{tool(format), "-xf", archive, "-C", dir}
	}

	if _, err := e.executor.WithContext(ctx).Run(args...); err != nil {
		return errors.WithContext(
			exec.Classify(err, errors.CodeExecutionFailed, "failed to extract "+archive),
			"path", archive,
		)
	}
	return nil
}

func tool(format Format) string {
	if format == FormatZip {
		return "unzip"
	}
	return "tar"
}

func absPaths(archive, dir string) (string, string, error) {
	a, err := filepath.Abs(archive)
	if err != nil {
		return "", "", errors.Wrap(err, errors.CodeInternal, "failed to resolve archive path")
	}
	d, err := filepath.Abs(dir)
	if err != nil {
		return "", "", errors.Wrap(err, errors.CodeInternal, "failed to resolve extraction directory")
	}
	return a, d, nil
}
