package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the output of every logger created by New.
type Options struct {
	// Level is a zerolog level name: debug, info, warn, error.
	Level string
	// Format is "json" or "console". Empty defers to APP_ENV: "dev" selects
	// console output.
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

var (
	mu      sync.RWMutex
	current = Options{Output: os.Stdout}
)

// Configure applies opts to loggers created afterwards.
func Configure(opts Options) error {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	switch strings.ToLower(opts.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	zerolog.SetGlobalLevel(level)
	mu.Lock()
	current = opts
	mu.Unlock()
	return nil
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger tagged with the component field.
func NewZerologLogger(component string) Logger {
	mu.RLock()
	opts := current
	mu.RUnlock()

	format := strings.ToLower(opts.Format)
	if format == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		format = "console"
	}
	out := opts.Output
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: opts.Output, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
