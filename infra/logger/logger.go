package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/freightmatch/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// Options configures the process-wide log output.
type Options struct {
	// Level is a zerolog level name; empty keeps "info".
	Level string
	// File, when set, receives the logs in addition to stdout and is rotated
	// by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.RWMutex
	output io.Writer = os.Stdout
	level            = zerolog.InfoLevel
)

// Setup applies the options to every logger created afterwards. The returned
// function closes the log file, if any.
func Setup(opts Options) (func() error, error) {
	lvl := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}

	var w io.Writer = stdoutWriter()
	var lj *lumberjack.Logger
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		lj = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		w = zerolog.MultiLevelWriter(w, lj)
	}

	mu.Lock()
	output, level = w, lvl
	mu.Unlock()

	return func() error {
		if lj == nil {
			return nil
		}
		return lj.Close()
	}, nil
}

// stdoutWriter returns a console writer when APP_ENV=dev.
func stdoutWriter() io.Writer {
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	return os.Stdout
}

// New returns a Logger for the given component.
func New(component string) Logger {
	mu.RLock()
	w, lvl := output, level
	mu.RUnlock()
	if w == io.Writer(os.Stdout) {
		w = stdoutWriter()
	}
	return NewZerologLogger(w, lvl, component)
}
