package exec

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jhol/marlintool/errors"
)

// ExecError describes a failed command run.
type ExecError struct {
	// Command is the full command line including arguments.
	Command []string

	// ExitCode is the process exit code, or -1 if it never ran.
	ExitCode int

	Stdout string
	Stderr string

	// Err is the underlying error.
	Err error

	notFound bool
}

func (e *ExecError) Error() string {
	if e.notFound {
		return fmt.Sprintf("command %q not found: %v", e.name(), e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("command %v failed with exit code %d: %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command %v failed with exit code %d", e.Command, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the binary could not be located.
func (e *ExecError) NotFound() bool {
	return e.notFound
}

func (e *ExecError) name() string {
	if len(e.Command) == 0 {
		return ""
	}
	return e.Command[0]
}

// ExitCode extracts the exit code from an error returned by Run. It returns
// 0 for nil and -1 when the process never produced an exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var execErr *ExecError
	if stderrors.As(err, &execErr) {
		return execErr.ExitCode
	}
	return -1
}

// Classify converts a Run error into a PlatformError. Missing binaries
// become CodePrerequisiteMissing, deadlines CodeTimeout and everything else
// the supplied code. The exit code and trimmed stderr are attached as
// context.
func Classify(err error, code errors.ErrorCode, message string) error {
	if err == nil {
		return nil
	}

	var execErr *ExecError
	if !stderrors.As(err, &execErr) {
		return errors.Wrap(err, code, message)
	}

	var out errors.PlatformError
	switch {
	case execErr.NotFound():
		out = errors.Wrapf(err, errors.CodePrerequisiteMissing, "required tool %q is not installed", execErr.name())
		return errors.WithContext(out, "tool", execErr.name())
	case stderrors.Is(execErr.Err, context.DeadlineExceeded):
		out = errors.Wrap(err, errors.CodeTimeout, message)
	default:
		out = errors.Wrap(err, code, message)
	}

	out = errors.WithContext(out, "exit_code", execErr.ExitCode)
	if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
		out = errors.WithContext(out, "stderr", stderr)
	}
	return out
}
