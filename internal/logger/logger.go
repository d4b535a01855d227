package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	apperrors "github.com/vidtube/accounts/internal/errors"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a textual level to a Level, falling back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Entry mirrors the JSON shape of a single log line.
type Entry struct {
	Time          string         `json:"time"`
	Level         string         `json:"level"`
	Message       string         `json:"message"`
	RequestID     string         `json:"request_id,omitempty"`
	Component     string         `json:"component,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorCategory string         `json:"error_category,omitempty"`
	Caller        string         `json:"caller,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Config holds logger construction options.
type Config struct {
	Output    io.Writer
	Level     Level
	Format    string // "json" (default) or "console"
	Component string
}

// Logger provides structured logging on top of zerolog.
type Logger struct {
	zl        zerolog.Logger
	component string
	redactor  *Redactor
}

var defaultLogger = New(&Config{Output: os.Stdout, Level: LevelInfo})

// New creates a new logger
func New(cfg *Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(out).Level(cfg.Level.zerolog()).With().Timestamp().Logger()
	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}

	return &Logger{zl: zl, component: cfg.Component, redactor: DefaultRedactor()}
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// WithComponent creates a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		redactor:  l.redactor,
	}
}

func (l *Logger) event(ctx context.Context, ev *zerolog.Event, msg string, fields map[string]any) {
	if ctx != nil {
		if requestID := apperrors.GetRequestID(ctx); requestID != "" {
			ev = ev.Str("request_id", requestID)
		}
	}
	if len(fields) > 0 {
		ev = ev.Interface("fields", l.redactor.RedactFields(fields))
	}
	ev.Msg(l.redactor.Redact(msg))
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]any) {
	l.event(ctx, l.zl.Debug(), msg, first(fields))
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]any) {
	l.event(ctx, l.zl.Info(), msg, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]any) {
	l.event(ctx, l.zl.Warn(), msg, first(fields))
}

// Error logs an error message. AppErrors add their code and category.
func (l *Logger) Error(ctx context.Context, msg string, err error, fields ...map[string]any) {
	ev := l.zl.Error().Caller(1)
	if err != nil {
		ev = ev.Err(err)
		if appErr, ok := apperrors.AsAppError(err); ok {
			ev = ev.Str("error_code", appErr.Code).Str("error_category", string(appErr.Category))
		}
	}
	l.event(ctx, ev, msg, first(fields))
}

func first(fields []map[string]any) map[string]any {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Package-level convenience functions

func Debug(ctx context.Context, msg string, fields ...map[string]any) {
	defaultLogger.Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...map[string]any) {
	defaultLogger.Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...map[string]any) {
	defaultLogger.Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, err error, fields ...map[string]any) {
	defaultLogger.Error(ctx, msg, err, fields...)
}
