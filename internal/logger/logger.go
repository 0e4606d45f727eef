package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Format selects the slog handler used for the console.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// FileConfig describes rotated log files.
// Path is the application log. Dir, when set, receives the helper's
// output as Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Config is the unified logging configuration.
type Config struct {
	Level  string     `mapstructure:"level"`
	Format Format     `mapstructure:"format"`
	Color  bool       `mapstructure:"color"`
	File   FileConfig `mapstructure:"file"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger writing to console and, when File.Path is set, to a
// rotated file. The returned closer flushes and closes the file.
func (c Config) New(console io.Writer) (*slog.Logger, io.Closer, error) {
	if console == nil {
		console = os.Stderr
	}
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	switch {
	case c.Format == FormatJSON:
		handlers = append(handlers, slog.NewJSONHandler(console, opts))
	case c.Color:
		handlers = append(handlers, NewColorTextHandler(console, opts))
	default:
		handlers = append(handlers, slog.NewTextHandler(console, opts))
	}

	var closer io.Closer = nopCloser{}
	if c.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.File.Path), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		fw := c.File.rotated(c.File.Path)
		closer = fw
		if c.Format == FormatJSON {
			handlers = append(handlers, slog.NewJSONHandler(fw, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(fw, opts))
		}
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(NewMultiHandler(handlers...)), closer, nil
}

// ProcessWriters returns rotated writers for the helper's stdout and stderr.
// Both are nil when Dir is empty.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser) {
	if c.File.Dir == "" {
		return nil, nil
	}
	out := c.File.rotated(filepath.Join(c.File.Dir, fmt.Sprintf("%s.stdout.log", name)))
	errW := c.File.rotated(filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name)))
	return out, errW
}

func (f FileConfig) rotated(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
