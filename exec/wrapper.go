package exec

import (
	"context"
	"io"
	osexec "os/exec"
	"time"

	"github.com/jhol/marlintool/errors"
)

// CommandWrapper binds an Executor to one tool so callers only pass
// arguments, e.g. NewWrapper(exec.New(), "tar").Run("-xf", archive).
type CommandWrapper struct {
	executor Executor
	cmd      string
}

// NewWrapper creates a CommandWrapper that prepends cmd to every Run call.
func NewWrapper(executor Executor, cmd string) *CommandWrapper {
	return &CommandWrapper{
		executor: executor,
		cmd:      cmd,
	}
}

// Name returns the wrapped tool name.
func (w *CommandWrapper) Name() string {
	return w.cmd
}

func (w *CommandWrapper) with(executor Executor) *CommandWrapper {
	return &CommandWrapper{executor: executor, cmd: w.cmd}
}

func (w *CommandWrapper) WithEnv(env map[string]string) Executor {
	return w.with(w.executor.WithEnv(env))
}

func (w *CommandWrapper) WithDir(dir string) Executor {
	return w.with(w.executor.WithDir(dir))
}

func (w *CommandWrapper) WithContext(ctx context.Context) Executor {
	return w.with(w.executor.WithContext(ctx))
}

func (w *CommandWrapper) WithTimeout(timeout time.Duration) Executor {
	return w.with(w.executor.WithTimeout(timeout))
}

func (w *CommandWrapper) WithStdout(out io.Writer) Executor {
	return w.with(w.executor.WithStdout(out))
}

func (w *CommandWrapper) WithStderr(out io.Writer) Executor {
	return w.with(w.executor.WithStderr(out))
}

func (w *CommandWrapper) WithPassthrough() Executor {
	return w.with(w.executor.WithPassthrough())
}

// Require checks that the wrapped tool can be found, using the same lookup
// as Run.
func (w *CommandWrapper) Require() error {
	return RequireFor(w.executor, w.cmd)
}

// Run executes the wrapped tool with args.
func (w *CommandWrapper) Run(args ...string) (*Result, error) {
	fullArgs := append([]string{w.cmd}, args...)
	return w.executor.Run(fullArgs...)
}

// Require checks that every named tool can be found in PATH. The first
// missing tool is reported as CodePrerequisiteMissing.
func Require(names ...string) error {
	return RequireWith(osexec.LookPath, names...)
}

// RequireWith is Require with a custom lookup function.
func RequireWith(lookPath func(string) (string, error), names ...string) error {
	for _, name := range names {
		if _, err := lookPath(name); err != nil {
			return errors.WithContext(
				errors.Wrapf(err, errors.CodePrerequisiteMissing, "required tool %q is not installed", name),
				"tool", name,
			)
		}
	}
	return nil
}

// RequireFor is Require using the binary lookup of executor, so a Command
// built with WithLookPath is checked the way its Run resolves binaries.
// Other executors fall back to PATH.
func RequireFor(executor Executor, names ...string) error {
	switch e := executor.(type) {
	case *Command:
		return RequireWith(e.lookPath, names...)
	case *CommandWrapper:
		return RequireFor(e.executor, names...)
	default:
		return Require(names...)
	}
}
