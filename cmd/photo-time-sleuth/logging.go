package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

// setupLogging installs the default JSON logger. Records go to console and,
// when the cache directory is usable, to app.log. The returned func closes
// the file.
func setupLogging(debugMode bool, console io.Writer) func() {
	f, path, err := openLogFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, path, err)
		slog.SetDefault(newLogger(console, debugMode))
		return func() {}
	}

	slog.SetDefault(newLogger(io.MultiWriter(console, f), debugMode))
	slog.Debug(config.MsgLogReady,
		config.LogKeyComponent, config.CompMain,
		config.LogKeyPath, path,
		config.LogKeyDebug, debugMode)

	return func() { _ = f.Close() }
}

func newLogger(w io.Writer, debugMode bool) *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}))
}

// openLogFile starts a fresh app.log in the user cache directory.
// The previous run's log is kept as app.prev.log.
func openLogFile() (*os.File, string, error) {
	dir, err := logDir()
	if err != nil {
		return nil, "", err
	}

	path := filepath.Join(dir, config.LogFileName)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, filepath.Join(dir, config.LogFilePrevName))
	}

	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
	if err != nil {
		return nil, path, err
	}
	return f, path, nil
}

func logDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}

	dir := filepath.Join(cacheDir, config.AppID)
	if err := os.MkdirAll(dir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}
	return dir, nil
}
