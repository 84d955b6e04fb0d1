// Package logging provides structured logging for EmbedDB on top of
// Go's log/slog. The engine logs at operation granularity (recovery,
// flush, compaction, checkpoint, job batches) and never inside the
// per-row hot path.
//
// Example usage:
//
//	logger := logging.New(logging.Options{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("checkpoint complete", "tables", 3, "wal_bytes", 512)
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Level represents log severity levels.
type Level int

const (
	LevelDebug Level = iota - 4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch {
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel parses a level string, defaulting to Info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "info", "INFO", "":
		return LevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the log output format.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

// ParseFormat parses a format string, defaulting to JSON.
func ParseFormat(s string) Format {
	switch s {
	case "text", "TEXT":
		return FormatText
	default:
		return FormatJSON
	}
}

// Options configures the logger.
type Options struct {
	// Level is the minimum log level.
	Level Level

	// Format is the output format (json or text).
	Format Format

	// Output is where logs are written. Default: os.Stderr, keeping
	// stdout free for a host CLI's own output.
	Output io.Writer

	// Component is an optional component name attached to every record.
	Component string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Logger is EmbedDB's structured logger.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
}

// New creates a logger with the given options.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(slog.Level(opts.Level))

	handlerOpts := &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				a.Value = slog.StringValue(Level(level).String())
			}
			return a
		},
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	l := &Logger{slog: slog.New(handler), level: levelVar}
	if opts.Component != "" {
		l.slog = l.slog.With("component", opts.Component)
	}
	return l
}

// Nop returns a logger that discards everything; used by tests that
// don't assert on log output.
func Nop() *Logger {
	return New(Options{Level: LevelError + 4, Output: io.Discard})
}

// SetLevel changes the log level dynamically.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(slog.Level(level))
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	return Level(l.level.Level())
}

// With returns a new logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

// WithComponent returns a new logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With("component", component)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// Err returns an error attribute for logging.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration returns a duration attribute in milliseconds.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Float64(key+"_ms", float64(d.Nanoseconds())/1e6)
}
