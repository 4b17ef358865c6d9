package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Setup creates a slog.Logger. With an empty path (or "-") logs go to
// stderr; otherwise they are appended to the given file, whose handle is
// returned for the caller to close. verbose selects the level: 0 warns,
// 1 informs, 2 and up debugs.
func Setup(path string, verbose int) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch {
	case verbose <= 0:
		level = slog.LevelWarn
	case verbose == 1:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if path != "" && path != "-" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = f
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

// StateDir returns the path to the daemon's state directory
// (~/.config/scrobbled/state), where journals, the history archive and
// the instance lock live.
func StateDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scrobbled", "state"), nil
}
