// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package localstore provides durable client-side key/value storage.
//
// The client persists exactly one value across restarts: the access
// credential, under the fixed key KeyAPIKey. Values live in a small SQLite
// database so the file can be inspected and cleared with ordinary tools.
//
// # Key Types
//
//   - Store: Get/Set/Delete interface shared by all backends
//   - SQLiteStore: durable store in ~/.contractchat/local.db
//   - MemoryStore: in-process store for tests
//   - SealedStore: AES-256-GCM wrapper keyed by master.key next to the
//     database, so the stored credential is never plaintext on disk
//
// # Usage
//
//	store, err := localstore.OpenSQLite("")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	key, ok, err := store.Get(localstore.KeyAPIKey)
package localstore
