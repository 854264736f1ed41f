// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the contractchat components together.
//
// New builds the object graph from a config: the local store, the session
// guard, the backend client, the contract registry and selection, the
// uploader, the chat session and the settings service. The wiring
// implements the control flow between them:
//
//   - authenticating (stored or entered key) refreshes the registry
//   - an unauthorized response from the backend revokes the session
//   - a finished upload batch refreshes the registry once
//   - every chat turn is scoped by the current selection
//   - leaving the authenticated state resets chat, selection and registry
//
// Both the terminal UI and the one-shot CLI commands drive an *App.
package app
