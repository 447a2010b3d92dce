package exec

import (
	"context"
	"io"
	"time"
)

// Executor runs external commands. Every With* method returns a new
// Executor and leaves the receiver untouched, so a configured base executor
// can be shared between components.
type Executor interface {
	// WithEnv adds environment variables on top of the inherited environment.
	WithEnv(env map[string]string) Executor

	// WithDir sets the working directory for the command.
	WithDir(dir string) Executor

	// WithContext sets the context; the process is killed when it is done.
	WithContext(ctx context.Context) Executor

	// WithTimeout bounds the run time of the command.
	WithTimeout(timeout time.Duration) Executor

	// WithStdout sets the writer used for stdout passthrough.
	WithStdout(w io.Writer) Executor

	// WithStderr sets the writer used for stderr passthrough.
	WithStderr(w io.Writer) Executor

	// WithPassthrough streams output to the stdout/stderr writers while
	// still capturing it in the Result.
	WithPassthrough() Executor

	// Run executes args[0] with args[1:].
	Run(args ...string) (*Result, error)
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// Option configures a Command at construction time.
type Option func(*Command)

// WithEnv returns an Option that sets base environment variables.
func WithEnv(env map[string]string) Option {
	return func(c *Command) {
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// WithDir returns an Option that sets the base working directory.
func WithDir(dir string) Option {
	return func(c *Command) {
		c.dir = dir
	}
}

// WithStdout returns an Option that sets the base stdout writer.
func WithStdout(w io.Writer) Option {
	return func(c *Command) {
		c.stdout = w
	}
}

// WithStderr returns an Option that sets the base stderr writer.
func WithStderr(w io.Writer) Option {
	return func(c *Command) {
		c.stderr = w
	}
}

// WithPassthrough returns an Option that enables passthrough for every run.
func WithPassthrough() Option {
	return func(c *Command) {
		c.passthrough = true
	}
}

// WithLookPath replaces the binary lookup used before each run. Tests use it
// to simulate missing tools.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Command) {
		c.lookPath = fn
	}
}
