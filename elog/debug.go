//go:build debug

package elog

// Debug logs a message at debug level.
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}
