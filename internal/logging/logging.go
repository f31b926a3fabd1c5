// Package logging builds the prefixed loggers each component writes to.
//
// Output goes to stderr and, when a file is configured, to a size-rotated
// log file as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures log output.
type Options struct {
	// File is the log file path. Empty disables file output.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Quiet drops stderr output. File output is unaffected.
	Quiet bool
}

// DefaultOptions returns the default rotation settings with file output
// disabled.
func DefaultOptions() Options {
	return Options{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Factory hands out loggers that share one output.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
	mu   sync.Mutex
}

// NewFactory builds the shared output described by opts.
func NewFactory(opts Options) (*Factory, error) {
	f := &Factory{}

	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		f.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writers = append(writers, f.file)
	}

	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f, nil
}

// New returns a logger with the given prefix, for example "[store] ".
func (f *Factory) New(prefix string) *log.Logger {
	return log.New(f.out, prefix, log.LstdFlags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Rotate starts a new log file. It is a no-op without file output.
func (f *Factory) Rotate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Rotate()
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// New returns a stderr logger with the given prefix.
func New(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
