// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/contractchat/internal/session"
	"github.com/jeranaias/contractchat/internal/ui/styles"
	"github.com/jeranaias/contractchat/internal/util"
)

// Gate and modal text.
const (
	AuthRequiredTitle   = "Authentication Required"
	AuthRequiredText    = "You need an API Key to access this application."
	SettingsTitle       = "Settings"
	SettingsPrompt      = "Enter your OpenAI API Key to enable full functionality."
	SettingsPlaceholder = "sk-..."
	SavingText          = "Saving..."
	ConfirmTitle        = "Clear API Key"
	LoadingText         = "Loading..."
)

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return LoadingText
	}

	switch m.screen {
	case screenLoading:
		return m.center(m.spinner.View() + " " + LoadingText)
	case screenGate:
		return m.center(m.gateView())
	}

	switch m.overlay {
	case overlayHelp:
		return m.center(m.modal("Keys", m.help.FullHelpView(m.keys.FullHelp())))
	case overlayConfirm:
		return m.center(m.confirmView())
	case overlaySettings:
		return m.center(m.settingsView())
	case overlayPicker:
		return m.center(m.pickerView())
	}
	return m.mainView()
}

func (m Model) center(s string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func (m Model) modal(title, body string) string {
	return m.theme.Modal.Render(m.theme.ModalTitle.Render(title) + "\n" + body)
}

// =============================================================================
// GATE
// =============================================================================

func (m Model) gateView() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render(ChatTitle))
	b.WriteString("\n\n")

	if notice := m.app.Guard.Notice(); notice != "" {
		b.WriteString(styles.RenderWarning(notice))
		b.WriteString("\n\n")
	}
	if m.gateDeclined {
		b.WriteString(m.theme.ErrorText.Bold(true).Render(AuthRequiredTitle))
		b.WriteString("\n")
		b.WriteString(m.theme.Muted.Render(AuthRequiredText))
		b.WriteString("\n\n")
	}

	b.WriteString(session.EntryPrompt)
	b.WriteString("\n")
	b.WriteString(m.gateInput.View())
	b.WriteString("\n\n")

	switch {
	case m.gateBusy:
		b.WriteString(m.spinner.View() + " " + m.theme.Muted.Render("Checking key..."))
	case m.gateErr != "":
		b.WriteString(styles.RenderError(m.gateErr))
	default:
		b.WriteString(m.theme.Hint.Render("enter continue | C-c quit"))
	}
	return m.theme.Modal.Render(b.String())
}

// =============================================================================
// MAIN SCREEN
// =============================================================================

func (m Model) mainView() string {
	header := m.theme.Header.Width(m.width).Render(
		m.theme.HeaderTitle.Render(ChatTitle) + "  " + m.theme.HeaderSubtitle.Render(ChatSubtitle),
	)

	bodyHeight := max(m.height-2, 4)
	sidebarWidth := m.theme.SidebarWidth()
	chatWidth := m.width - sidebarWidth

	chatPane := m.theme.Pane
	sidebarPane := m.theme.Pane
	if *m.sidebarFocus {
		sidebarPane = m.theme.PaneFocused
	} else {
		chatPane = m.theme.PaneFocused
	}

	chat := chatPane.
		Width(max(chatWidth-2, 1)).
		Height(bodyHeight - 2).
		Render(m.chatView())

	body := chat
	if sidebarWidth > 0 {
		side := sidebarPane.
			Width(sidebarWidth - 2).
			Height(bodyHeight - 2).
			Render(m.sidebarView(sidebarWidth-4, bodyHeight-2))
		body = lipgloss.JoinHorizontal(lipgloss.Top, side, chat)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusView())
}

func (m Model) chatView() string {
	ctx := m.contextLine()
	if ctx == "" {
		ctx = m.theme.Hint.Render(util.Truncate(EmptyChatHint, m.viewport.Width))
	}
	input := m.theme.InputContainer.Width(m.viewport.Width).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), ctx, input)
}

func (m Model) statusView() string {
	var text string
	switch {
	case m.notice != "":
		switch m.noticeKind {
		case noticeSuccess:
			text = styles.RenderSuccess(m.notice)
		case noticeWarning:
			text = styles.RenderWarning(m.notice)
		case noticeError:
			text = styles.RenderError(m.notice)
		default:
			text = m.notice
		}
	default:
		text = m.help.ShortHelpView(m.keys.ShortHelp())
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(text)
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m Model) confirmView() string {
	body := session.ClearPrompt + "\n\n" +
		m.theme.ButtonHot.Render("y  Yes") + "  " + m.theme.Button.Render("n  No")
	return m.modal(ConfirmTitle, body)
}

func (m Model) settingsView() string {
	var b strings.Builder
	b.WriteString(SettingsPrompt)
	b.WriteString("\n\n")
	b.WriteString(m.settingsInput.View())
	b.WriteString("\n\n")

	switch {
	case m.settingsSaving:
		b.WriteString(m.spinner.View() + " " + SavingText)
	case m.settingsNotice != "":
		b.WriteString(styles.RenderSuccess(m.settingsNotice))
	case m.settingsErr != "":
		b.WriteString(styles.RenderError(m.settingsErr))
	default:
		b.WriteString(m.theme.Hint.Render("enter save | esc close"))
	}
	return m.modal(SettingsTitle, b.String())
}

func (m Model) pickerView() string {
	var b strings.Builder
	b.WriteString(m.theme.Muted.Render(util.Truncate(m.picker.CurrentDirectory, 60)))
	b.WriteString("\n\n")
	b.WriteString(m.picker.View())
	b.WriteString("\n")

	if len(m.queue) == 0 {
		b.WriteString(m.theme.Muted.Render("No files selected."))
	} else {
		b.WriteString(fmt.Sprintf("Selected %d %s:", len(m.queue), util.Plural(len(m.queue), "file")))
		for _, p := range m.queue {
			b.WriteString("\n  ")
			b.WriteString(queuedLine(p))
		}
	}
	b.WriteString("\n\n")
	if m.pickerErr != "" {
		b.WriteString(styles.RenderError(m.pickerErr))
		b.WriteString("\n")
	}
	b.WriteString(m.theme.Hint.Render("enter select | u upload | esc close"))
	return m.modal(UploadLabel, b.String())
}

func queuedLine(path string) string {
	name := util.Truncate(filepath.Base(path), 40)
	info, err := os.Stat(path)
	if err != nil {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, humanize.Bytes(uint64(info.Size())))
}
