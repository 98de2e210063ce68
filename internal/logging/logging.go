// Package logging builds the shared slog logger. Output goes to stdout and,
// when a path is configured, to a log file as well.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// New creates a text slog logger at the given level, mirrored to logFile when
// non-empty. The returned cleanup closes the file.
func New(level, logFile string) (*slog.Logger, func(), error) {
	writers := []io.Writer{os.Stdout}
	cleanup := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		cleanup = func() {
			_ = f.Sync()
			_ = f.Close()
		}
	}

	mw := io.MultiWriter(writers...)
	h := slog.NewTextHandler(mw, &slog.HandlerOptions{Level: ParseLevel(level)})
	lg := slog.New(h)
	log.SetOutput(mw) // stdlib log follows the same sinks
	return lg, cleanup, nil
}

// ParseLevel maps a level name to a slog level, defaulting to INFO.
func ParseLevel(level string) slog.Leveler {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
