// Package logger wraps logrus with the service naming and output conventions
// shared by every component of the lottery service.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls how a Logger formats and writes entries.
type LoggingConfig struct {
	Level      string
	Format     string // text | json
	Output     string // stdout | stderr | file
	FilePrefix string
}

// Logger is a named logrus logger. All logrus methods are available directly.
type Logger struct {
	*logrus.Logger
	name string
}

// New builds a logger from configuration. Invalid levels fall back to info and
// an unusable log file falls back to stdout.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	base.SetOutput(openOutput(cfg))
	return &Logger{Logger: base, name: "app"}
}

// NewDefault returns an info-level text logger tagged with the component name.
func NewDefault(name string) *Logger {
	l := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	l.name = name
	return l
}

// NewDiscard returns a logger that drops every entry. Useful in tests.
func NewDiscard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{Logger: base, name: "discard"}
}

// Name reports the component the logger was created for.
func (l *Logger) Name() string {
	return l.name
}

// Named returns an entry carrying the component field.
func (l *Logger) Named(component string) *logrus.Entry {
	return l.WithField("component", component)
}

func openOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stderr":
		return os.Stderr
	case "file":
		prefix := strings.TrimSpace(cfg.FilePrefix)
		if prefix == "" {
			prefix = "lottery"
		}
		path := filepath.Join("logs", prefix+"-"+time.Now().UTC().Format("20060102")+".log")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return os.Stdout
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}
