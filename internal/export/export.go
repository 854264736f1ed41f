// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/util"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("transcript has no messages")

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is one chat transcript to export.
type Document struct {
	Messages []model.ChatMessage `json:"messages"`

	// Scope is the focused contract's display name, or "" for all contracts.
	Scope string `json:"scope,omitempty"`

	// Backend is the base URL the answers came from.
	Backend string `json:"backend,omitempty"`

	ExportedAt time.Time `json:"exported_at"`
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a Document in one format.
type Exporter interface {
	Export(doc Document) ([]byte, error)

	// FileExtension includes the dot, e.g. ".md".
	FileExtension() string
}

// Options configures ToFile.
type Options struct {
	// OutputDir receives the file. Created with owner-only permissions.
	OutputDir string

	// IncludeTimestamps adds per-message times to Markdown output.
	IncludeTimestamps bool
}

// DefaultOptions exports into dir with timestamps.
func DefaultOptions(dir string) *Options {
	return &Options{OutputDir: dir, IncludeTimestamps: true}
}

// ForFormat returns the exporter for "markdown"/"md" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	}
	return nil, fmt.Errorf("unsupported export format: %s", format)
}

// ToFile writes doc to a new timestamped file in opts.OutputDir and returns
// its path.
func ToFile(doc Document, exporter Exporter, opts *Options) (string, error) {
	if opts == nil || opts.OutputDir == "" {
		return "", errors.New("export: no output directory")
	}
	if doc.ExportedAt.IsZero() {
		doc.ExportedAt = time.Now()
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	name := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(firstQuestion(doc)),
		doc.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(opts.OutputDir, name)
	if err := util.AtomicWriteFile(path, content, 0600); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func firstQuestion(doc Document) string {
	for _, m := range doc.Messages {
		if m.Role == model.RoleUser {
			return util.FirstLine(m.Content)
		}
	}
	return ""
}

// sanitizeFilename maps s to a short name safe on Windows and Unix.
func sanitizeFilename(s string) string {
	const maxLen = 40
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "transcript"
	}
	return b.String()
}
