// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the config, CLI and terminal
// UI packages: crash-safe file writes and display-width aware text
// truncation.
package util
