package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments the logger is tuned for
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New returns JSON logger for production and text logger otherwise
func New(env string, level string) (Logger, error) {
	switch env {
	case EnvProduction:
		return NewJSONLogger(level)
	case EnvDevelopment:
		return NewTextLogger(level)
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}
}

// NewTextLogger creates a new text logger with the specified level
func NewTextLogger(level string) (Logger, error) {
	opts, err := handlerOptions(level)
	if err != nil {
		return nil, err
	}
	return &slogLogger{logger: slog.New(slog.NewTextHandler(os.Stderr, opts))}, nil
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) (Logger, error) {
	opts, err := handlerOptions(level)
	if err != nil {
		return nil, err
	}
	return &slogLogger{logger: slog.New(slog.NewJSONHandler(os.Stderr, opts))}, nil
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	logger := slog.New(slog.DiscardHandler)
	return &slogLogger{logger: logger}
}

func handlerOptions(level string) (*slog.HandlerOptions, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	return &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}, nil
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
