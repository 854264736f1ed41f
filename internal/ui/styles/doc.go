// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the contractchat TUI.

All colors use Lip Gloss AdaptiveColor so they follow the terminal
background. The ui.theme setting can force one side with ApplyThemeMode.

# Color System (colors.go)

  - Purple - Primary accent, assistant messages, focused panes
  - Cyan - Brand color, user messages, the selected contract
  - Emerald - Success notices
  - Amber - Warnings, stale selections
  - Rose - Errors and failed replies

# Theme System (theme.go)

	theme := styles.NewTheme()
	sidebar := theme.Pane.Width(30).Render(list.View())

# Spinners

Spinner frames are ASCII so they render in every terminal:

	s := spinner.New(spinner.WithSpinner(styles.Spinner()))
*/
package styles
