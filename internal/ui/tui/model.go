// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/contractchat/internal/app"
	"github.com/jeranaias/contractchat/internal/export"
	"github.com/jeranaias/contractchat/internal/session"
	"github.com/jeranaias/contractchat/internal/settings"
	"github.com/jeranaias/contractchat/internal/ui/styles"
	"github.com/jeranaias/contractchat/internal/upload"
)

// =============================================================================
// STATE
// =============================================================================

type screen int

const (
	screenLoading screen = iota // restoring the stored key
	screenGate                  // unauthenticated
	screenMain                  // sidebar and chat
)

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayPicker
	overlaySettings
	overlayConfirm
)

type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeSuccess
	noticeWarning
	noticeError
)

// Options configures the model.
type Options struct {
	// Markdown renders assistant answers through glamour.
	Markdown bool

	// StartDir is where the PDF picker opens. Empty means the working
	// directory.
	StartDir string
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the root Bubble Tea model.
type Model struct {
	app   *app.App
	theme *styles.Theme
	keys  KeyMap

	width  int
	height int

	screen  screen
	overlay overlay

	// Gate
	gateInput    textinput.Model
	gateBusy     bool
	gateDeclined bool
	gateErr      string

	// Sidebar; focus is shared with the list delegate.
	sidebar         list.Model
	sidebarFocus    *bool
	registryVersion uint64

	// Chat
	viewport      viewport.Model
	input         textinput.Model
	spinner       spinner.Model
	help          help.Model
	markdown      bool
	renderer      *glamour.TermRenderer
	rendererWidth int
	renderedLen   int

	// Upload
	picker      filepicker.Model
	queue       []string
	pickerErr   string
	uploading   bool
	uploadDone  int
	uploadTotal int

	// Settings
	settingsInput  textinput.Model
	settingsSaving bool
	settingsNotice string
	settingsErr    string
	settingsSeq    int

	notice     string
	noticeKind noticeKind
	quitting   bool
}

// New creates the root model for a.
func New(a *app.App, theme *styles.Theme, opts Options) Model {
	gate := textinput.New()
	gate.Prompt = "> "
	gate.Placeholder = "API key"
	gate.EchoMode = textinput.EchoPassword
	gate.EchoCharacter = '*'
	gate.CharLimit = 256
	gate.Focus()

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = InputPrompt
	input.CharLimit = 4000

	settingsInput := textinput.New()
	settingsInput.Prompt = "> "
	settingsInput.Placeholder = SettingsPlaceholder
	settingsInput.EchoMode = textinput.EchoPassword
	settingsInput.EchoCharacter = '*'
	settingsInput.CharLimit = 256

	picker := filepicker.New()
	picker.AllowedTypes = upload.AllowedTypes
	picker.CurrentDirectory = opts.StartDir
	if picker.CurrentDirectory == "" {
		if wd, err := os.Getwd(); err == nil {
			picker.CurrentDirectory = wd
		}
	}
	// esc closes the overlay instead of walking up a directory.
	picker.KeyMap.Back = key.NewBinding(
		key.WithKeys("h", "backspace", "left"),
		key.WithHelp("h", "back"),
	)
	picker.Height = 10

	focus := new(bool)

	return Model{
		app:           a,
		theme:         theme,
		keys:          DefaultKeyMap(),
		screen:        screenLoading,
		gateInput:     gate,
		sidebar:       newSidebar(theme, a.Selection, focus),
		sidebarFocus:  focus,
		viewport:      viewport.New(0, 0),
		input:         input,
		spinner:       spinner.New(spinner.WithSpinner(styles.Spinner()), spinner.WithStyle(theme.InputPrompt)),
		help:          help.New(),
		markdown:      opts.Markdown,
		picker:        picker,
		settingsInput: settingsInput,
	}
}

// Init restores the stored session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(startCmd(m.app), m.spinner.Tick, textinput.Blink)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case startedMsg:
		if msg.err != nil {
			m.setNotice(noticeError, msg.err.Error())
		}
		return m.afterSession()

	case loginMsg:
		m.gateBusy = false
		if msg.err != nil {
			m.gateErr = msg.err.Error()
		}
		return m.afterSession()

	case refreshedMsg:
		if msg.err != nil {
			m.setNotice(noticeError, "Failed to load contracts.")
		}
		return m.afterSession()

	case chatReplyMsg:
		return m.afterSession()

	case uploadProgressMsg:
		m.uploadDone, m.uploadTotal = msg.done, msg.total
		return m, nil

	case uploadDoneMsg:
		return m.handleUploadDone(msg)

	case settingsMsg:
		return m.handleSettingsResult(msg)

	case settingsDismissMsg:
		if msg.seq == m.settingsSeq && m.overlay == overlaySettings {
			m.closeSettings()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.app.Chat.Pending() {
			m.syncViewport()
		}
		return m, cmd
	}

	// Everything else (cursor blink, directory listings) goes to the
	// components that can use it.
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	cmds = append(cmds, cmd)
	switch {
	case m.screen == screenGate:
		m.gateInput, cmd = m.gateInput.Update(msg)
	case m.overlay == overlaySettings:
		m.settingsInput, cmd = m.settingsInput.Update(msg)
	default:
		m.input, cmd = m.input.Update(msg)
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.screen == screenLoading || m.gateBusy || m.uploading || m.settingsSaving || m.app.Chat.Pending()
}

// afterSession moves between the gate and the main screen to match the
// session state, then refreshes derived views.
func (m Model) afterSession() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.app.Guard.Authenticated() {
		if m.screen != screenMain {
			m.screen = screenMain
			m.gateInput.Reset()
			m.gateDeclined = false
			m.gateErr = ""
			m.setFocus(false)
			cmds = append(cmds, textinput.Blink)
		}
	} else if m.screen != screenGate {
		m.screen = screenGate
		m.overlay = overlayNone
		m.input.Reset()
		m.queue = nil
		m.gateInput.Reset()
		m.gateInput.Focus()
		cmds = append(cmds, textinput.Blink)
	}

	cmds = append(cmds, m.syncSidebar())
	m.syncViewport()
	return m, tea.Batch(cmds...)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(m.width, m.height)
	m.help.Width = m.width

	// Layout: header (1) + panes + status bar (1). The chat pane holds the
	// viewport, the context line and the bordered input (2).
	const (
		headerHeight = 1
		statusHeight = 1
		paneChrome   = 2
		inputHeight  = 3
	)
	bodyHeight := m.height - headerHeight - statusHeight
	chatWidth := m.width - m.theme.SidebarWidth()

	m.viewport.Width = max(chatWidth-4, 10)
	m.viewport.Height = max(bodyHeight-paneChrome-inputHeight, 1)
	m.input.Width = max(chatWidth-8, 10)
	m.gateInput.Width = min(max(m.width-12, 10), 60)
	m.settingsInput.Width = min(max(m.width-16, 10), 60)
	m.picker.Height = max(m.height/2, 5)

	m.syncViewport()
	return m, nil
}

func (m *Model) setNotice(kind noticeKind, text string) {
	m.noticeKind = kind
	m.notice = text
}

func (m *Model) setFocus(sidebar bool) {
	*m.sidebarFocus = sidebar
	if sidebar {
		m.input.Blur()
	} else {
		m.input.Focus()
	}
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.app.Chat.Cancel()
		m.quitting = true
		return m, tea.Quit
	}

	switch m.screen {
	case screenLoading:
		return m, nil
	case screenGate:
		return m.handleGateKey(msg)
	}

	switch m.overlay {
	case overlayHelp:
		m.overlay = overlayNone
		return m, nil
	case overlayConfirm:
		return m.handleConfirmKey(msg)
	case overlaySettings:
		return m.handleSettingsKey(msg)
	case overlayPicker:
		return m.handlePickerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Upload):
		if m.uploading {
			m.setNotice(noticeWarning, "An upload is already running.")
			return m, nil
		}
		m.overlay = overlayPicker
		m.queue = nil
		m.pickerErr = ""
		return m, m.picker.Init()

	case key.Matches(msg, m.keys.Settings):
		m.overlay = overlaySettings
		m.settingsInput.Reset()
		m.settingsErr = ""
		m.settingsNotice = ""
		m.input.Blur()
		return m, m.settingsInput.Focus()

	case key.Matches(msg, m.keys.Logout):
		m.overlay = overlayConfirm
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, refreshCmd(m.app)

	case key.Matches(msg, m.keys.Export):
		return m.exportTranscript()

	case key.Matches(msg, m.keys.Focus):
		m.setFocus(!*m.sidebarFocus)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if *m.sidebarFocus {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) exportTranscript() (tea.Model, tea.Cmd) {
	path, err := m.app.ExportTranscript()
	switch {
	case errors.Is(err, export.ErrEmpty):
		m.setNotice(noticeWarning, "Nothing to save yet.")
	case err != nil:
		m.setNotice(noticeError, "Failed to save transcript.")
	default:
		m.setNotice(noticeSuccess, "Transcript saved to "+path)
	}
	return m, nil
}

func (m Model) handleGateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		if m.gateBusy {
			return m, nil
		}
		value := strings.TrimSpace(m.gateInput.Value())
		if value == "" {
			m.gateDeclined = true
			return m, nil
		}
		m.gateBusy = true
		m.gateDeclined = false
		m.gateErr = ""
		return m, tea.Batch(loginCmd(m.app, value), m.spinner.Tick)

	case key.Matches(msg, m.keys.Cancel):
		m.gateInput.Reset()
		m.gateDeclined = true
		return m, nil
	}

	if m.gateBusy {
		return m, nil
	}
	var cmd tea.Cmd
	m.gateInput, cmd = m.gateInput.Update(msg)
	return m, cmd
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.app.Chat.Cancel() {
			m.setNotice(noticeInfo, "Request cancelled.")
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		turn, err := m.app.Chat.Begin(m.input.Value(), m.app.Scope())
		if err != nil {
			// Pending or blank input: nothing happens.
			return m, nil
		}
		m.input.SetValue(m.app.Chat.Input())
		m.notice = ""
		m.syncViewport()
		return m, tea.Batch(chatCmd(turn), m.spinner.Tick)
	}

	if m.app.Chat.Pending() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.app.Chat.SetInput(m.input.Value())
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		if c, ok := m.selectedListContract(); ok {
			m.app.Selection.Toggle(c.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Unselect):
		m.app.Selection.Clear()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		m.setFocus(false)
		return m, nil
	}

	var cmd tea.Cmd
	m.sidebar, cmd = m.sidebar.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		m.overlay = overlayNone
		err := m.app.ClearSession(session.ConfirmFunc(func(string) bool { return true }))
		if err != nil {
			m.setNotice(noticeError, err.Error())
		}
		return m.afterSession()
	case key.Matches(msg, m.keys.No):
		m.overlay = overlayNone
	}
	return m, nil
}

// =============================================================================
// UPLOAD
// =============================================================================

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.overlay = overlayNone
		m.queue = nil
		return m, nil

	case key.Matches(msg, m.keys.StartUpload):
		if len(m.queue) == 0 {
			m.pickerErr = "Select at least one PDF first."
			return m, nil
		}
		paths := m.queue
		m.queue = nil
		m.overlay = overlayNone
		m.uploading = true
		m.uploadDone, m.uploadTotal = 0, len(paths)
		m.notice = ""
		return m, tea.Batch(uploadCmd(m.app, paths), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.pickerErr = ""
		m.toggleQueued(path)
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.pickerErr = "Only PDF files can be uploaded: " + filepath.Base(path)
	}
	return m, cmd
}

func (m *Model) toggleQueued(path string) {
	for i, p := range m.queue {
		if p == path {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
	m.queue = append(m.queue, path)
}

func (m Model) handleUploadDone(msg uploadDoneMsg) (tea.Model, tea.Cmd) {
	m.uploading = false
	m.uploadDone, m.uploadTotal = 0, 0

	switch {
	case errors.Is(msg.err, upload.ErrBusy):
		m.setNotice(noticeWarning, "An upload is already running.")
	case msg.err != nil:
		text := upload.FailureMessage
		if msg.batch.Attempted > 0 {
			text += " " + msg.batch.Summary()
		}
		m.setNotice(noticeError, text)
	default:
		m.setNotice(noticeSuccess, msg.batch.Summary())
	}
	if msg.batch.RefreshErr != nil && msg.err == nil {
		m.setNotice(noticeWarning, msg.batch.Summary()+"; contract list not refreshed.")
	}
	return m.afterSession()
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if !m.settingsSaving {
			m.closeSettings()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.settingsSaving || m.settingsNotice != "" {
			return m, nil
		}
		m.settingsSaving = true
		m.settingsErr = ""
		return m, tea.Batch(settingsCmd(m.app, m.settingsInput.Value()), m.spinner.Tick)
	}

	if m.settingsSaving {
		return m, nil
	}
	var cmd tea.Cmd
	m.settingsInput, cmd = m.settingsInput.Update(msg)
	return m, cmd
}

func (m Model) handleSettingsResult(msg settingsMsg) (tea.Model, tea.Cmd) {
	m.settingsSaving = false
	if msg.err != nil {
		var se *settings.Error
		if errors.As(msg.err, &se) {
			m.settingsErr = se.Message
		} else {
			m.settingsErr = settings.FallbackFailure
		}
		return m.afterSession()
	}

	m.settingsErr = ""
	m.settingsNotice = msg.result.Notice
	m.settingsInput.Reset()
	m.settingsSeq++
	return m, dismissSettingsCmd(msg.result.Dismiss, m.settingsSeq)
}

func (m *Model) closeSettings() {
	m.overlay = overlayNone
	m.settingsInput.Reset()
	m.settingsInput.Blur()
	m.settingsNotice = ""
	m.settingsErr = ""
	m.setFocus(*m.sidebarFocus)
}
