// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"io"
	"log/slog"
)

// NewLogger builds a slog.Logger from the log section: JSON or text
// handler at the configured level. Unrecognized values fall back to
// the defaults (Validate rejects them before this point in normal
// operation).
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}
