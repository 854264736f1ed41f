// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for contracts and chat messages.
//
// This package defines the core domain types shared by the backend client,
// the session components and the terminal UI.
//
// # Key Types
//
//   - Contract: A processed PDF contract as listed by the backend
//   - ContractID: Opaque contract identifier (string or number on the wire)
//   - ContractMetadata: Optional extracted fields (title, dates, vendor)
//   - ChatMessage: Single transcript entry with role, content and sources
//   - Transcript: Append-only, concurrency-safe list of chat messages
//
// # Usage
//
// Build a transcript turn:
//
//	t := model.NewTranscript()
//	t.Append(model.NewUserMessage("What is the term length?"))
//	t.Append(model.NewAssistantMessage("2 years", []string{"a.pdf p.3"}))
package model
