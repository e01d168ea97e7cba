// Package logger builds the process-wide zerolog logger: console and file
// output, size-based file rotation, and redaction of credentials that would
// otherwise leak into log lines.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path, empty disables file output
	Console   bool   // enable console output
	Pretty    bool   // human-readable console format
	Redaction bool   // redact credentials in output
	MaxSizeMB int    // rotate the file past this size, 0 disables rotation
	MaxAge    int    // days to keep rotated files
	Compress  bool   // gzip rotated files
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSizeMB: 100,
		MaxAge:    7,
		Compress:  true,
	}
}

// Logger owns the configured zerolog.Logger and the file behind it.
type Logger struct {
	logger zerolog.Logger
	closer io.Closer
}

// New builds a logger from config and installs it as the zerolog global.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Console {
		var console io.Writer = os.Stdout
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		}
		writers = append(writers, console)
	}

	var closer io.Closer
	if cfg.File != "" {
		rf, err := newRotatingFile(cfg.File, cfg.MaxSizeMB, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, rf)
		closer = rf
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	if cfg.Redaction {
		writer = NewRedactor().Wrap(writer)
	}

	l := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = l

	return &Logger{logger: l, closer: closer}, nil
}

// Zerolog returns the underlying zerolog.Logger for injection.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
