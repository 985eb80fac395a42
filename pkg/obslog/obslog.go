// Package obslog wires log/slog to a rotating file sink, grounded on
// the teacher pack's mmp-vice/log package: a *slog.Logger embedded in a
// thin wrapper, backed by gopkg.in/natefinch/lumberjack.v2.
package obslog

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger embeds *slog.Logger so callers can use the standard slog API
// directly (logger.Info(...), logger.With(...)).
type Logger struct {
	*slog.Logger
}

// New builds a logger that writes structured JSON lines to both stderr
// and a rotating file under dir (created if needed). level is one of
// "debug", "info", "warn", "error".
func New(dir, level string) *Logger {
	var handlerWriter = os.Stderr

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if dir == "" {
		return &Logger{slog.New(slog.NewJSONHandler(handlerWriter, opts))}
	}

	rotator := &lumberjack.Logger{
		Filename: dir + "/sdraudio.log",
		MaxSize:  64, // MB
		MaxAge:   14,
		Compress: true,
	}

	handler := slog.NewJSONHandler(rotator, opts)
	return &Logger{slog.New(handler)}
}
