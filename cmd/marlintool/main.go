// Command marlintool provisions a Marlin firmware build environment: the
// Arduino toolchain, libraries, hardware definitions and the firmware
// itself, with the user's configuration kept across upstream updates.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/jhol/marlintool/config"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitRequest carries the status kong asks for after printing help.
type exitRequest int

func run(args []string, stdout, stderr io.Writer) (status int) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("marlintool"),
		kong.Description("Provision a Marlin firmware build environment."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitRequest(code)) }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "marlintool: %v\n", err)
		return 1
	}

	defer func() {
		if r := recover(); r != nil {
			code, ok := r.(exitRequest)
			if !ok {
				panic(r)
			}
			status = int(code)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "marlintool: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, cli.Globals)
	if err != nil {
		report(stderr, err)
		return 1
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Stderr:     stderr,
	})
	if err != nil {
		report(stderr, errors.Wrap(err, errors.CodeInvalidConfig, "failed to configure logging"))
		return 1
	}

	app := &App{ctx: ctx, cfg: cfg, logger: logger, stdout: stdout}
	if err := kctx.Run(app); err != nil {
		report(stderr, err)
		return 1
	}
	return 0
}

// loadConfig reads the configuration file. A missing default file falls
// back to schema defaults resolved against the working directory; a missing
// file named with --config is an error.
func loadConfig(ctx context.Context, g Globals) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to determine working directory")
	}

	var cfg *config.Config
	path := g.Config
	if path == "" {
		path = filepath.Join(wd, config.DefaultFile)
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg, err = config.Defaults(wd)
		} else {
			cfg, err = config.Load(ctx, path)
		}
	} else {
		cfg, err = config.Load(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	cfg.Apply(config.Overrides{
		CacheDir: g.CacheDir,
		LogLevel: g.LogLevel,
		LogFile:  g.LogFile,
	}, wd)
	return cfg, nil
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "marlintool: %v\n", err)
	if fields := errors.Fields(err); fields != "" {
		fmt.Fprintf(w, "  %s\n", fields)
	}
}
