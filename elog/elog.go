// Package elog provides levelled logging for the firmware. Err, Warn and
// Info are always compiled in; Debug compiles to a no-op unless the debug
// build tag is set, so hot paths may call it freely.
package elog

import (
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetLogger replaces the package logger. The default writes text to stderr,
// which the platform's syswriter forwards to the debug UART.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Err logs a message at error level.
func Err(msg string, args ...any) {
	logger.Error(msg, args...)
}

// Warn logs a message at warn level.
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Info logs a message at info level.
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}
