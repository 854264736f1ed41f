// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/contractchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes a transcript as Markdown with a YAML front matter
// header.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter. opts may be nil.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = &Options{IncludeTimestamps: true}
	}
	return &MarkdownExporter{options: opts}
}

// Export renders doc.
func (e *MarkdownExporter) Export(doc Document) ([]byte, error) {
	if len(doc.Messages) == 0 {
		return nil, ErrEmpty
	}

	var sb strings.Builder
	scope := doc.Scope
	if scope == "" {
		scope = "All contracts"
	}

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "scope: %s\n", escapeYAML(scope))
	if doc.Backend != "" {
		fmt.Fprintf(&sb, "backend: %s\n", escapeYAML(doc.Backend))
	}
	fmt.Fprintf(&sb, "messages: %d\n", len(doc.Messages))
	fmt.Fprintf(&sb, "exported: %s\n", doc.ExportedAt.Format(time.RFC3339))
	sb.WriteString("generator: contractchat\n")
	sb.WriteString("---\n\n")

	sb.WriteString("# Contract Chat\n\n")
	fmt.Fprintf(&sb, "**Context:** %s\n\n", scope)

	for i, msg := range doc.Messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, msg.Timestamp.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		content := strings.TrimSpace(msg.Content)
		if msg.Role == model.RoleUser {
			content = quote(content)
		}
		if msg.Failed {
			content = "_" + content + "_"
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if len(msg.Sources) > 0 {
			sb.WriteString("**Sources:**\n\n")
			for _, s := range msg.Sources {
				fmt.Fprintf(&sb, "- %s\n", s)
			}
			sb.WriteString("\n")
		}

		if i < len(doc.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// quote prefixes every line with "> ".
func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// escapeYAML quotes values that YAML would otherwise misread.
func escapeYAML(s string) string {
	if s == "" || strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`,\n") {
		b, _ := json.Marshal(s)
		return string(b)
	}
	return s
}

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the Document as indented JSON.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export renders doc.
func (e *JSONExporter) Export(doc Document) ([]byte, error) {
	if len(doc.Messages) == 0 {
		return nil, ErrEmpty
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
