package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// logFileMaxSizeMB caps each rotated log file.
	logFileMaxSizeMB = 10

	// logFileMaxBackups is the number of rotated files kept.
	logFileMaxBackups = 3
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
func NewLogger(env string) *slog.Logger {
	return slog.New(newHandler(env, os.Stdout))
}

// NewLoggerWithFile creates a logger that writes both to stdout and to a
// rotating file under logDir. With an empty logDir it behaves exactly
// like NewLogger.
func NewLoggerWithFile(env, logDir string) *slog.Logger {
	if logDir == "" {
		return NewLogger(env)
	}

	os.MkdirAll(logDir, 0o750) //nolint:errcheck

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "cloudsync.log"),
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
	}

	return slog.New(newHandler(env, io.MultiWriter(os.Stdout, file)))
}

func newHandler(env string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		return slog.NewJSONHandler(w, opts)
	}

	opts.Level = slog.LevelDebug

	return slog.NewTextHandler(w, opts)
}
