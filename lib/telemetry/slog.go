package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// InitSlog installs a text handler on the default logger writing to stderr
// and, when logFile is set, appending to that file too. The returned
// function closes the log file.
func InitSlog(verbose bool, logFile string) (func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	closer := func() error { return nil }
	if logFile != "" {
		err := os.MkdirAll(filepath.Dir(logFile), 0777)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f.Close
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	})))
	return closer, nil
}
