// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the interactive terminal client.
//
// The root Model has two screens. The gate asks for the API key whenever
// the session is unauthenticated. The main screen shows the sidebar of
// processed contracts next to the chat panel. Overlays on the main screen
// pick PDFs to upload, update backend settings, confirm clearing the key
// and show help. ctrl+e saves the conversation to the export directory.
//
// All network work runs in tea.Cmd goroutines against an *app.App and
// reports back as messages. After every result the model re-reads the
// session state, so a revocation anywhere returns to the gate.
package tui
