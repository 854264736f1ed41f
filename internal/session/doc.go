// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the access credential and gates the application.
//
// A Guard is the single owner of the API key. It reads the key from durable
// storage at startup, prompts for one when none is stored, supplies it to
// every backend call as an api.CredentialSource and tears the session down
// when the backend rejects the key or the user clears it.
//
// # Key Types
//
//   - Guard: credential owner with an authenticated/unauthenticated state
//   - Prompter: asks the user for a credential at startup
//   - Confirmer: asks the user to confirm clearing the credential
//   - Event: one state transition, delivered to OnChange listeners
//
// # Usage
//
//	guard := session.NewGuard(store, session.WithLogger(logger))
//	guard.OnAuthenticated(func(ctx context.Context) {
//	    _ = registry.Refresh(ctx)
//	})
//	if err := guard.Start(ctx, prompter); err != nil {
//	    return err
//	}
//	if !guard.Authenticated() {
//	    // show the re-entry screen
//	}
//
// # Transitions
//
// Revoke and Clear erase the stored key, drop the in-memory key and move to
// the unauthenticated state under one lock, then notify listeners once.
package session
