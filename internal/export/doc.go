// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export saves chat transcripts as Markdown or JSON files.
//
//	doc := export.Document{Messages: session.Messages(), Scope: "lease.pdf"}
//	path, err := export.ToFile(doc, export.NewMarkdownExporter(nil), export.DefaultOptions(dir))
package export
