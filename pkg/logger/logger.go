// Package logger wraps zerolog with the level/format/output knobs exposed in configuration.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog logger
type Logger struct {
	logger zerolog.Logger
}

// New creates a new logger instance
func New(level, format, output string) *Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var writer io.Writer = os.Stdout
	switch output {
	case "", "stdout":
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			log.Fatal().Err(err).Str("output", output).Msg("Failed to open log file")
		}
		writer = file
	}

	if format == "console" || format == "text" {
		writer = zerolog.ConsoleWriter{Out: writer}
	}

	return &Logger{logger: zerolog.New(writer).With().Timestamp().Caller().Logger()}
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// parseLevel converts string level to zerolog.Level
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
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", name).Logger()}
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}

// With creates a child logger context with additional fields
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// GetLogger returns the underlying zerolog.Logger
func (l *Logger) GetLogger() zerolog.Logger {
	return l.logger
}

// IsDebug reports whether debug events are emitted.
func (l *Logger) IsDebug() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel && zerolog.GlobalLevel() <= zerolog.DebugLevel
}

var global *Logger

// Init initializes the global logger
func Init(level, format, output string) *Logger {
	global = New(level, format, output)
	return global
}

// Get returns the global logger instance
func Get() *Logger {
	if global == nil {
		global = New("info", "json", "stdout")
	}
	return global
}
