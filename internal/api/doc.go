// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the contract chat backend.
//
// The backend exposes four calls: list contracts, upload a PDF, ask a
// question and update server-side settings. Every call carries the session
// credential in the X-API-Key header, a fresh X-Request-ID and the client
// User-Agent. Outbound calls pass through a client-side rate limiter.
//
// # Key Types
//
//   - Client: backend client with credential injection and error mapping
//   - CredentialSource: supplies the current credential per request
//   - APIError: non-2xx response with the backend's detail text
//   - ChatRequest / ChatResponse: one chat turn on the wire
//
// # Usage
//
//	client := api.NewClient("http://localhost:8000", guard,
//	    api.WithLogger(logger),
//	    api.WithRateLimit(5, 10),
//	)
//	client.OnAuthFailure(func(op api.Operation, err error) {
//	    guard.HandleAuthFailure(err)
//	})
//
//	contracts, err := client.ListContracts(ctx)
//
// # Errors
//
// HTTP 401 and 403 responses match ErrUnauthorized through errors.Is, on
// every call. Calls made without a credential fail with ErrNotConfigured
// before any network traffic.
//
// # Security
//
// The credential is never logged. Log lines carry a short SHA-256
// fingerprint of the key instead.
package api
