// Package testhelpers holds small fixtures shared across package tests.
package testhelpers

import (
	"io"
	"log/slog"
)

// NewTestLogger returns a logger for components under test. Output is
// discarded so failures surface through assertions, not log noise.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
