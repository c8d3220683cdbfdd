// Package logging builds the process logger: console output at the
// configured level plus an optional per-run file that records everything down
// to debug.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

type Options struct {
	Level   string
	Format  string
	Dir     string
	Verbose bool
	// Console defaults to os.Stdout.
	Console io.Writer
}

// New returns the logger and a close function for the run log file. The file
// is logs/run_<timestamp>.log under opts.Dir; an empty Dir disables it.
func New(opts Options) (*logrus.Logger, func() error, error) {
	consoleLevel := logrus.InfoLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		consoleLevel = lvl
	}
	if opts.Verbose && consoleLevel < logrus.DebugLevel {
		consoleLevel = logrus.DebugLevel
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	logger.AddHook(&writer.Hook{Writer: console, LogLevels: levelsUpTo(consoleLevel)})

	closeFn := func() error { return nil }
	level := consoleLevel
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		path := filepath.Join(opts.Dir, fmt.Sprintf("run_%s.log", time.Now().Format("20060102_150405")))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.AddHook(&writer.Hook{Writer: f, LogLevels: levelsUpTo(logrus.DebugLevel)})
		closeFn = f.Close
		if level < logrus.DebugLevel {
			level = logrus.DebugLevel
		}
	}
	logger.SetLevel(level)

	return logger, closeFn, nil
}

func levelsUpTo(top logrus.Level) []logrus.Level {
	var out []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= top {
			out = append(out, l)
		}
	}
	return out
}
