package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Environment string
	Level       string // overrides the environment default when set
	Format      string // json | text; json in production by default
	File        string // optional rotated log file, written alongside stdout
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

// New builds the service logger.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	format := opts.Format
	if format == "" {
		if opts.Environment == "production" {
			format = "json"
		} else {
			format = "text"
		}
	}
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.DebugLevel
	if opts.Environment == "production" {
		level = logrus.InfoLevel
	}
	if opts.Level != "" {
		if parsed, err := logrus.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}
	log.SetLevel(level)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			log.WithError(err).Warn("Failed to create log directory, logging to stdout only")
			return log
		}
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}))
	}

	return log
}

// Discard returns a logger that drops everything, for tests and dry runs.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
