//go:build !debug

package elog

// Debug is a no-op in release builds. Guard any argument computation with
// debug.Enabled so it can be removed as well.
func Debug(msg string, args ...any) {}
