// Package logger builds the application's zerolog root: console or JSON
// output, optional rotating file sink, component-scoped children.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger carries the root zerolog instance and owns the file rotator.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// Config controls output format, level, and file rotation. Zero rotation
// values fall back to 10 MB, 5 backups, 30 days.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // log directory; empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds the root logger. Binaries run through "go run" get debug
// level automatically unless trace was asked for.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)
	if IsDevBuild() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	sinks := []io.Writer{consoleSink(cfg.Format)}
	rotator := fileSink(cfg)
	if rotator != nil {
		sinks = append(sinks, rotator)
	}

	root := zerolog.New(io.MultiWriter(sinks...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: root, rotator: rotator}
}

// WithComponent returns a child logger tagged with a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:  l.Logger.With().Str("component", component).Logger(),
		rotator: l.rotator,
	}
}

// Close flushes and closes the file sink when one is open.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// IsDevBuild reports whether the binary came out of "go run": those live
// in the go-build temp cache.
func IsDevBuild() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	return strings.Contains(exe, "go-build")
}

func consoleSink(format string) io.Writer {
	if format == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// fileSink returns a rotating writer under cfg.Path, or nil when no path
// is configured or the directory cannot be created.
func fileSink(cfg Config) *lumberjack.Logger {
	if cfg.Path == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, "sublarr.log"),
		MaxSize:    defaulted(cfg.MaxSizeMB, 10),
		MaxBackups: defaulted(cfg.MaxBackups, 5),
		MaxAge:     defaulted(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
}

func defaulted(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
