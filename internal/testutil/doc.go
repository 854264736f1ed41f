// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testutil provides an in-process fake of the contract chat backend.
//
// Backend serves the four endpoints the client uses, enforces X-API-Key
// authentication the way the real server does (401 for an unknown key, 403
// for non-admin settings updates), and records every request so tests can
// assert on exact traffic.
//
// # Usage
//
//	backend := testutil.NewBackend(t, "key-1")
//	backend.SetContracts(testutil.Contract("1", "a.pdf"))
//	backend.SetChatHandler(func(q testutil.ChatQuery) (int, any) {
//	    return 200, map[string]any{"answer": "2 years", "sources": []string{"a.pdf p.3"}}
//	})
//
//	client := api.NewClient(backend.URL(), api.StaticCredential("key-1"))
package testutil
