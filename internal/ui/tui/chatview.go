// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/contractchat/internal/model"
)

// Chat panel text.
const (
	ChatTitle       = "AI Contract Chatbot"
	ChatSubtitle    = "Upload PDF contracts and ask questions."
	EmptyChat       = "Ask questions about your uploaded contracts."
	EmptyChatHint   = "Select a contract from the sidebar to focus the search."
	InputPrompt     = "Ask a question..."
	ContextLabel    = "Context:"
	SourcesLabel    = "Sources:"
	ThinkingText    = "Thinking..."
	timestampFormat = "15:04"
)

// markdownRenderer returns a glamour renderer for width, rebuilding it when
// the width changes. It returns nil when markdown is off or unavailable.
func (m *Model) markdownRenderer(width int) *glamour.TermRenderer {
	if !m.markdown || width < 20 {
		return nil
	}
	if m.renderer != nil && m.rendererWidth == width {
		return m.renderer
	}
	style := "light"
	if m.theme.IsDark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.app.Logger.Warn("markdown renderer unavailable", "err", err)
		m.markdown = false
		return nil
	}
	m.renderer = r
	m.rendererWidth = width
	return r
}

// renderTranscript renders every message, oldest first.
func (m *Model) renderTranscript(width int) string {
	msgs := m.app.Chat.Messages()
	if len(msgs) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			"",
			m.theme.Muted.Render(EmptyChat),
			m.theme.Hint.Render(EmptyChatHint),
		)
	}

	bodyWidth := width - 2
	if bodyWidth < 10 {
		bodyWidth = 10
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, bodyWidth))
		b.WriteString("\n")
	}
	if m.app.Chat.Pending() {
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " " + m.theme.Muted.Render(ThinkingText))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg model.ChatMessage, width int) string {
	stamp := m.theme.Timestamp.Render(" " + msg.Timestamp.Format(timestampFormat))

	if msg.Role == model.RoleUser {
		header := m.theme.UserLabel.Render(msg.Role.DisplayName()) + stamp
		return header + "\n" + m.theme.UserBody.Width(width).Render(msg.Content)
	}

	header := m.theme.AssistantLabel.Render(msg.Role.DisplayName()) + stamp
	if msg.Failed {
		return header + "\n" + m.theme.FailedBody.Width(width).Render(msg.Content)
	}

	body := msg.Content
	if r := m.markdownRenderer(width - 2); r != nil {
		if out, err := r.Render(msg.Content); err == nil {
			body = strings.Trim(out, "\n")
		}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(m.theme.AssistantBody.Width(width).Render(body))
	if msg.HasSources() {
		b.WriteString("\n")
		b.WriteString(m.theme.SourcesTitle.Render(SourcesLabel))
		for _, src := range msg.Sources {
			b.WriteString("\n")
			b.WriteString(m.theme.SourceItem.Width(width).Render("- " + src))
		}
	}
	return b.String()
}

// syncViewport re-renders the transcript and follows it to the bottom when
// it grew.
func (m *Model) syncViewport() {
	m.viewport.SetContent(m.renderTranscript(m.viewport.Width))
	n := m.app.Chat.Len()
	if n != m.renderedLen {
		m.viewport.GotoBottom()
		m.renderedLen = n
	}
}

// contextLine describes the scope of the next question.
func (m *Model) contextLine() string {
	c, ok := m.app.Selection.Resolve(m.app.Registry)
	if !ok {
		return ""
	}
	return m.theme.ContextBadge.Render(ContextLabel + " " + c.DisplayName())
}
