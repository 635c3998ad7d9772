package main

import (
	"io"
	"log/slog"

	"github.com/MrWong99/tartil/internal/config"
)

// newLogger returns a text logger writing to w at the shared [logLevel].
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// setLogLevel changes the verbosity of every logger made by [newLogger].
func setLogLevel(level config.LogLevel) {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logLevel.Set(lvl)
}
