// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// THEME CREATION TESTS
// =============================================================================

func TestNewTheme(t *testing.T) {
	theme := NewTheme()
	require.NotNil(t, theme)

	styles := map[string]lipgloss.Style{
		"Header":           theme.Header,
		"Pane":             theme.Pane,
		"ContractSelected": theme.ContractSelected,
		"UserBody":         theme.UserBody,
		"AssistantBody":    theme.AssistantBody,
		"FailedBody":       theme.FailedBody,
		"StatusBar":        theme.StatusBar,
		"Modal":            theme.Modal,
	}
	for name, s := range styles {
		assert.Contains(t, s.Render("test"), "test", name)
	}
}

// =============================================================================
// LAYOUT TESTS
// =============================================================================

func TestThemeLayoutMode(t *testing.T) {
	theme := NewTheme()

	tests := []struct {
		width   int
		mode    LayoutMode
		sidebar int
	}{
		{40, LayoutNarrow, 0},
		{59, LayoutNarrow, 0},
		{60, LayoutMedium, 28},
		{99, LayoutMedium, 28},
		{100, LayoutWide, 36},
		{200, LayoutWide, 36},
	}
	for _, tt := range tests {
		theme.SetSize(tt.width, 24)
		assert.Equal(t, tt.mode, theme.GetLayoutMode(), "width %d", tt.width)
		assert.Equal(t, tt.sidebar, theme.SidebarWidth(), "width %d", tt.width)
	}
}

// =============================================================================
// INDICATOR TESTS
// =============================================================================

func TestRenderHelpersIncludeIndicators(t *testing.T) {
	assert.Contains(t, RenderSuccess("saved"), "[OK] saved")
	assert.Contains(t, RenderError("failed"), "[X] failed")
	assert.Contains(t, RenderWarning("stale"), "[!] stale")
}

func TestSpinnerFramesAreASCII(t *testing.T) {
	s := Spinner()
	require.NotEmpty(t, s.Frames)
	assert.Greater(t, int64(s.FPS), int64(0))
	for _, f := range s.Frames {
		for _, r := range f {
			assert.Less(t, r, rune(128))
		}
	}
}
