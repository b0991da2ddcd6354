// Package logging owns the zerolog output. Component loggers are created
// before the config is read, so they all write through a sink that Setup
// can retarget later.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Level is one of zerolog levels, info by default.
	Level string `yaml:"level" env:"LOG_LEVEL"`

	// Format is "console" or "json", console by default.
	Format string `yaml:"format"`

	// File additionally writes JSON logs to this path, rotated.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *sink) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

var (
	output = &sink{w: zerolog.ConsoleWriter{Out: os.Stderr}}
)

func init() {
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Component returns the logger of a package.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Setup applies cfg to every logger, including the ones already created.
// The returned closer flushes the log file, if any.
func Setup(cfg *Config) (io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, err
		}
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.Format == "json" {
		console = os.Stderr
	}

	if cfg.File == "" {
		output.set(console)
		return io.NopCloser(nil), nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	output.set(zerolog.MultiLevelWriter(console, file))
	return file, nil
}
