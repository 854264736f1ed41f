// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/contractchat/internal/app"
	"github.com/jeranaias/contractchat/internal/ui/styles"
)

// Run starts the interactive client on the alternate screen and blocks
// until the user quits. relay may be nil.
func Run(a *app.App, relay *ProgressRelay, opts Options) error {
	styles.ApplyThemeMode(a.Config.UI.Theme)
	m := New(a, styles.NewTheme(), opts)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if relay != nil {
		relay.Attach(p)
		defer relay.Attach(nil)
	}

	_, err := p.Run()
	return err
}
