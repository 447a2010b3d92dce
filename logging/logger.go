// Package logging builds the logrus logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Level is a logrus level name: debug, info, warn, error.
	Level string

	// File, when set, sends JSON logs to a rotated file instead of Stderr.
	File string

	// MaxSizeMB and MaxBackups configure file rotation.
	MaxSizeMB  int
	MaxBackups int

	// Stderr is the console writer. Defaults to os.Stderr.
	Stderr io.Writer
}

// New creates a logger from opts. If the log file directory cannot be
// created, the logger falls back to the console and logs a warning.
func New(opts Options) (*logrus.Logger, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	console := opts.Stderr
	if console == nil {
		console = os.Stderr
	}

	logger := logrus.New()
	logger.SetLevel(parsed)

	output, outErr := buildOutput(opts, console)
	logger.SetOutput(output)
	if output == console {
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
			DisableQuote:     true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   opts.File,
		}).Warn(outErr.Error())
	}

	return logger, nil
}

func buildOutput(opts Options, console io.Writer) (io.Writer, error) {
	if opts.File == "" {
		return console, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return console, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		LocalTime:  true,
	}, nil
}

// Discard returns a logger that drops everything. Components default to it
// when no logger is injected.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
