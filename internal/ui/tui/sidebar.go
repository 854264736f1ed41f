// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/registry"
	"github.com/jeranaias/contractchat/internal/ui/styles"
	"github.com/jeranaias/contractchat/internal/util"
)

// Sidebar text.
const (
	SidebarTitle  = "Processed Contracts"
	EmptySidebar  = "No contracts uploaded yet."
	UploadLabel   = "Upload Contract PDFs"
	UploadingText = "Uploading..."
	StaleNotice   = "Focused contract is no longer listed; searching all."
)

// contractItem adapts a contract to list.Item.
type contractItem struct {
	contract model.Contract
}

func (i contractItem) FilterValue() string { return i.contract.DisplayName() }

// contractDelegate renders a contract as two lines: a marker and the name,
// then the metadata summary.
type contractDelegate struct {
	theme     *styles.Theme
	selection *registry.Selection
	focused   *bool
}

func (d contractDelegate) Height() int                         { return 2 }
func (d contractDelegate) Spacing() int                        { return 0 }
func (d contractDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d contractDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(contractItem)
	if !ok {
		return
	}
	width := m.Width() - 2
	if width < 8 {
		width = 8
	}

	cursor := "  "
	if index == m.Index() && d.focused != nil && *d.focused {
		cursor = d.theme.ContractCursor.Render("> ")
	}

	selected := d.selection.IsSelected(ci.contract.ID)
	marker := styles.StatusIndicators.Pending
	style := d.theme.ContractItem
	if selected {
		marker = styles.StatusIndicators.Selected
		style = d.theme.ContractSelected
	}

	name := util.Truncate(ci.contract.DisplayName(), width-util.Width(marker)-3)
	meta := util.Truncate(ci.contract.Summary(), width-3)

	fmt.Fprintf(w, "%s%s\n%s", cursor, style.Render(marker+" "+name), d.theme.ContractMeta.Render(meta))
}

func newSidebar(theme *styles.Theme, sel *registry.Selection, focused *bool) list.Model {
	l := list.New(nil, contractDelegate{theme: theme, selection: sel, focused: focused}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	return l
}

func contractItems(contracts []model.Contract) []list.Item {
	items := make([]list.Item, len(contracts))
	for i, c := range contracts {
		items[i] = contractItem{contract: c}
	}
	return items
}

// syncSidebar reloads the list when the registry snapshot changed.
func (m *Model) syncSidebar() tea.Cmd {
	v := m.app.Registry.Version()
	if v == m.registryVersion {
		return nil
	}
	m.registryVersion = v
	return m.sidebar.SetItems(contractItems(m.app.Registry.Contracts()))
}

// selectedListContract returns the contract under the sidebar cursor.
func (m *Model) selectedListContract() (model.Contract, bool) {
	ci, ok := m.sidebar.SelectedItem().(contractItem)
	if !ok {
		return model.Contract{}, false
	}
	return ci.contract, true
}

func (m Model) sidebarView(width, height int) string {
	var b strings.Builder
	b.WriteString(m.theme.PaneTitle.Render(SidebarTitle))
	b.WriteString("\n")

	used := 2
	if m.app.Registry.Len() == 0 {
		b.WriteString(m.theme.Muted.Render(EmptySidebar))
		b.WriteString("\n")
		used++
	}

	var footer []string
	if err := m.app.Registry.LastError(); err != nil {
		footer = append(footer, m.theme.ErrorText.Render(util.Truncate("Failed to load contracts", width)))
	}
	if m.app.Selection.Stale(m.app.Registry) {
		footer = append(footer, m.theme.WarningText.Width(width).Render(StaleNotice))
	}
	if m.uploading {
		line := m.spinner.View() + " " + UploadingText
		if m.uploadTotal > 0 {
			line += fmt.Sprintf(" %d/%d", m.uploadDone, m.uploadTotal)
		}
		footer = append(footer, line)
	} else {
		footer = append(footer, m.theme.Hint.Render(UploadLabel+" (C-o)"))
	}

	footerHeight := 0
	for _, f := range footer {
		footerHeight += strings.Count(f, "\n") + 1
	}

	if m.app.Registry.Len() > 0 {
		listHeight := height - used - footerHeight - 1
		if listHeight < 2 {
			listHeight = 2
		}
		m.sidebar.SetSize(width, listHeight)
		b.WriteString(m.sidebar.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Join(footer, "\n"))
	return b.String()
}
