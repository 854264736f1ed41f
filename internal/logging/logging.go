// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger shared by every component.
//
// Log output always goes to a file (or a caller-supplied writer), never to
// the terminal, so a running TUI is not corrupted by log lines.
//
// SECURITY: secrets are never logged. Use KeyFingerprint to identify a
// credential in log output.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// File is the log file path. Ignored when Writer is set.
	File string

	// Writer receives log output directly.
	Writer io.Writer

	// JSON selects the JSON formatter instead of logfmt-style text.
	JSON bool
}

// Logger wraps a charm logger with the file it writes to.
type Logger struct {
	*log.Logger
	file *os.File
}

// New creates a logger from opts. With neither Writer nor File set the
// logger discards everything.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var (
		w    io.Writer = io.Discard
		file *os.File
	)
	switch {
	case opts.Writer != nil:
		w = opts.Writer
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = file
	}

	formatter := log.TextFormatter
	if opts.JSON {
		formatter = log.JSONFormatter
	}

	l := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
	return &Logger{Logger: l, file: file}, nil
}

// Discard returns a logger that drops all output.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// Close closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config level name to a log level.
func ParseLevel(s string) (log.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return log.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", s)
	}
	return level, nil
}

// ValidLevels lists the accepted level names.
func ValidLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// KeyFingerprint returns a short SHA-256 fingerprint of a secret.
// The secret itself never appears in output.
func KeyFingerprint(secret string) string {
	if secret == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:4])
}
