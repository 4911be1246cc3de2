package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rotatingFile returns a size-rotated writer for path.
func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// SetupLogging installs the default slog logger. With a log file, JSON
// records go to the rotated file and stderr gets text records; without one,
// only stderr is used. The returned closer flushes the file.
func SetupLogging(level, file string) (io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if file == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, err
	}
	rotated := rotatingFile(file)
	slog.SetDefault(slog.New(fanoutHandler{
		slog.NewJSONHandler(rotated, opts),
		slog.NewTextHandler(os.Stderr, opts),
	}))
	return rotated, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
