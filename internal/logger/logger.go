// Package logger builds the process-wide zerolog logger. Console output goes
// to stderr so that commands streaming NDJSON on stdout stay machine readable.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level     string `json:"level" mapstructure:"level"`         // debug, info, warn, error
	File      string `json:"file" mapstructure:"file"`           // optional log file path
	Console   bool   `json:"console" mapstructure:"console"`     // write to stderr
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`       // human readable console format
	Redaction bool   `json:"redaction" mapstructure:"redaction"` // mask credentials
	MaxSizeMB int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDay int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress  bool   `json:"compress" mapstructure:"compress"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"` // JSONL trail of run events, optional
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSizeMB: 50,
		MaxAgeDay: 7,
		Compress:  true,
	}
}

// Logger owns the configured zerolog.Logger and its file handle
type Logger struct {
	zl     zerolog.Logger
	closer io.Closer
}

// Console is where console output goes; tests may replace it
var Console io.Writer = os.Stderr

// New builds a logger from cfg and installs it as log.Logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var (
		writers []io.Writer
		closer  io.Closer
	)

	if cfg.Console {
		var w io.Writer = Console
		if cfg.Pretty {
			w = zerolog.ConsoleWriter{Out: Console, TimeFormat: time.RFC3339}
		}
		writers = append(writers, w)
	}

	if cfg.File != "" {
		fw, err := openFile(cfg)
		if err != nil {
			return nil, err
		}
		writers = append(writers, fw)
		closer = fw
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	if cfg.Redaction {
		out = NewRedactor().Wrap(out)
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = zl

	return &Logger{zl: zl, closer: closer}, nil
}

func openFile(cfg Config) (io.WriteCloser, error) {
	if cfg.MaxSizeMB > 0 {
		return NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxAgeDay, cfg.Compress)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Zerolog returns the underlying logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
