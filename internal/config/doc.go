// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// contractchat.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CONTRACTCHAT_*)
//   - ~/.contractchat/config.toml
//   - ~/.contractchat/config.json
//   - Built-in defaults
//
// CONTRACTCHAT_HOME relocates the whole directory, including the local
// store and the log file.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := api.NewClient(cfg.Backend.URL, creds)
//
// Keys use dot notation for the CLI:
//
//	_ = cfg.Set("upload.continue_on_error", "true")
//	v, _ := cfg.Get("backend.url")
package config
