package exec

import (
	"context"
	"io"
	"os"
	osexec "os/exec"
	"time"
)

// Command is the os/exec backed Executor.
type Command struct {
	ctx         context.Context
	env         map[string]string
	dir         string
	timeout     time.Duration
	stdout      io.Writer
	stderr      io.Writer
	passthrough bool
	lookPath    func(string) (string, error)
}

// New creates a Command. Child processes inherit the parent environment.
func New(opts ...Option) *Command {
	cmd := &Command{
		ctx:      context.Background(),
		env:      make(map[string]string),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		lookPath: osexec.LookPath,
	}

	for _, opt := range opts {
		opt(cmd)
	}

	return cmd
}

func (c *Command) clone() *Command {
	cp := *c
	cp.env = make(map[string]string, len(c.env))
	for k, v := range c.env {
		cp.env[k] = v
	}
	return &cp
}

func (c *Command) WithEnv(env map[string]string) Executor {
	cp := c.clone()
	for k, v := range env {
		cp.env[k] = v
	}
	return cp
}

func (c *Command) WithDir(dir string) Executor {
	cp := c.clone()
	cp.dir = dir
	return cp
}

func (c *Command) WithContext(ctx context.Context) Executor {
	cp := c.clone()
	cp.ctx = ctx
	return cp
}

func (c *Command) WithTimeout(timeout time.Duration) Executor {
	cp := c.clone()
	cp.timeout = timeout
	return cp
}

func (c *Command) WithStdout(w io.Writer) Executor {
	cp := c.clone()
	cp.stdout = w
	return cp
}

func (c *Command) WithStderr(w io.Writer) Executor {
	cp := c.clone()
	cp.stderr = w
	return cp
}

func (c *Command) WithPassthrough() Executor {
	cp := c.clone()
	cp.passthrough = true
	return cp
}

// Run executes the command. A non-zero exit, a missing binary or a
// cancelled context all return an *ExecError alongside whatever output was
// captured.
func (c *Command) Run(args ...string) (*Result, error) {
	if len(args) == 0 {
		return nil, &ExecError{
			Command:  args,
			ExitCode: -1,
			Err:      osexec.ErrNotFound,
		}
	}

	path, err := c.lookPath(args[0])
	if err != nil {
		return nil, &ExecError{
			Command:  args,
			ExitCode: -1,
			Err:      err,
			notFound: true,
		}
	}

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := osexec.CommandContext(ctx, path, args[1:]...)
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdoutPass, stderrPass io.Writer
	if c.passthrough {
		stdoutPass, stderrPass = c.stdout, c.stderr
	}
	stdout := newOutputCapture(stdoutPass)
	stderr := newOutputCapture(stderrPass)
	combined := newCombinedWriter()

	cmd.Stdout = newMultiWriter(stdout.Writer(), combined)
	cmd.Stderr = newMultiWriter(stderr.Writer(), combined)

	runErr := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = ctxErr
		}
		return result, &ExecError{
			Command:  args,
			ExitCode: result.ExitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
			Err:      runErr,
		}
	}

	return result, nil
}
