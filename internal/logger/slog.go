package logger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Attribute keys whose values never reach the log output in full
var maskedKeys = map[string]bool{
	"utr":           true,
	"utrnumber":     true,
	"token":         true,
	"secret":        true,
	"authorization": true,
}

// ledgerLogger implements Logger on top of slog handler
type ledgerLogger struct {
	logger *slog.Logger
}

// log records the caller of Debug/Info/Warn/Error as the source, not this wrapper
func (l *ledgerLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.Add(args...)
	_ = l.logger.Handler().Handle(ctx, record)
}

func (l *ledgerLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *ledgerLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *ledgerLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *ledgerLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *ledgerLogger) With(args ...any) Logger {
	return &ledgerLogger{logger: l.logger.With(args...)}
}

func (l *ledgerLogger) WithGroup(name string) Logger {
	return &ledgerLogger{logger: l.logger.WithGroup(name)}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelWarn, "warning":
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// replaceAttr trims source paths to file names and masks sensitive values
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if source, ok := a.Value.Any().(*slog.Source); ok {
			source.File = filepath.Base(source.File)
		}
		return a
	}

	if maskedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, mask(a.Value.String()))
	}
	return a
}

// mask keeps last four characters, enough to match a UTR against a bank statement
func mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}
