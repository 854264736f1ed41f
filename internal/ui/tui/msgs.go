// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/contractchat/internal/app"
	"github.com/jeranaias/contractchat/internal/chat"
	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/settings"
	"github.com/jeranaias/contractchat/internal/upload"
)

// =============================================================================
// MESSAGES
// =============================================================================

// startedMsg reports the result of restoring the stored credential.
type startedMsg struct{ err error }

// loginMsg reports the result of submitting a key at the gate.
type loginMsg struct{ err error }

// refreshedMsg reports a manual registry refresh.
type refreshedMsg struct{ err error }

// chatReplyMsg carries the assistant message that ended a turn.
type chatReplyMsg struct{ msg model.ChatMessage }

// uploadProgressMsg reports one finished file of a running batch.
type uploadProgressMsg struct {
	done, total int
	result      upload.Result
}

// uploadDoneMsg reports a finished batch.
type uploadDoneMsg struct {
	batch upload.Batch
	err   error
}

// settingsMsg reports a settings update.
type settingsMsg struct {
	result settings.Result
	err    error
}

// settingsDismissMsg closes the settings modal after a success notice.
type settingsDismissMsg struct{ seq int }

// =============================================================================
// COMMANDS
// =============================================================================

func startCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: a.Start(context.Background(), nil)}
	}
}

func loginCmd(a *app.App, key string) tea.Cmd {
	return func() tea.Msg {
		return loginMsg{err: a.Login(context.Background(), key)}
	}
}

func refreshCmd(a *app.App) tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{err: a.Registry.Refresh(context.Background())}
	}
}

func chatCmd(t *chat.Turn) tea.Cmd {
	return func() tea.Msg {
		return chatReplyMsg{msg: t.Run(context.Background())}
	}
}

func uploadCmd(a *app.App, paths []string) tea.Cmd {
	return func() tea.Msg {
		batch, err := a.Upload(context.Background(), paths)
		return uploadDoneMsg{batch: batch, err: err}
	}
}

func settingsCmd(a *app.App, key string) tea.Cmd {
	return func() tea.Msg {
		res, err := a.Settings.Update(context.Background(), key)
		return settingsMsg{result: res, err: err}
	}
}

func dismissSettingsCmd(d time.Duration, seq int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return settingsDismissMsg{seq: seq}
	})
}

// =============================================================================
// PROGRESS RELAY
// =============================================================================

// ProgressRelay forwards upload progress into a running program. Pass
// Progress to app.Options before the program exists, then Attach it.
type ProgressRelay struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach sets the program that receives progress messages.
func (r *ProgressRelay) Attach(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.program = p
}

// Progress is an upload.ProgressFunc.
func (r *ProgressRelay) Progress(done, total int, res upload.Result) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(uploadProgressMsg{done: done, total: total, result: res})
	}
}
