// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry caches the backend's contract listing and tracks which
// contract, if any, scopes the chat.
//
// # Key Types
//
//   - Registry: snapshot of processed contracts, replaced on every refresh
//   - Selection: weak reference (an ID) into the registry
//
// # Usage
//
//	reg := registry.New(client, registry.WithLogger(logger))
//	if err := reg.Refresh(ctx); err != nil {
//	    // previous list is kept; show err as a status line
//	}
//
//	var sel registry.Selection
//	sel.Select(reg.Contracts()[0].ID)
//	req := api.ChatRequest{Query: q, ContractID: sel.ScopeID(reg)}
//
// # Stale Selections
//
// A selected ID that disappears from a refreshed listing is kept, but it
// resolves to "no scoping" until the contract reappears or the selection
// is cleared.
package registry
