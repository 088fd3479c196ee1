package logger

import (
	"fmt"
	"io"
	"os"
)

// LegacyLogger prints bracketed lines to stderr without slog.
// Enabled with FERRY_USE_LEGACY_LOGGER=true.
type LegacyLogger struct {
	level  Level
	out    io.Writer
	prefix []any
}

// NewLegacyLogger creates a legacy logger writing to stderr
func NewLegacyLogger(level Level) *LegacyLogger {
	return &LegacyLogger{level: level, out: os.Stderr}
}

func (l *LegacyLogger) write(level Level, tag, msg string, args []any) {
	if level < l.level {
		return
	}
	all := append(append([]any{}, l.prefix...), args...)
	fmt.Fprintf(l.out, "[%s] %s %v\n", tag, msg, all)
}

func (l *LegacyLogger) Debug(msg string, args ...any) { l.write(LevelDebug, "DEBUG", msg, args) }
func (l *LegacyLogger) Info(msg string, args ...any)  { l.write(LevelInfo, "INFO", msg, args) }
func (l *LegacyLogger) Warn(msg string, args ...any)  { l.write(LevelWarn, "WARN", msg, args) }
func (l *LegacyLogger) Error(msg string, args ...any) { l.write(LevelError, "ERROR", msg, args) }

// With returns a logger that prefixes every line with args
func (l *LegacyLogger) With(args ...any) Logger {
	return &LegacyLogger{
		level:  l.level,
		out:    l.out,
		prefix: append(append([]any{}, l.prefix...), args...),
	}
}

func (l *LegacyLogger) Sync() error     { return nil }
func (l *LegacyLogger) Shutdown() error { return nil }
