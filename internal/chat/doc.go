// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives the question/answer cycle against the backend.
//
// A Session is Idle or Pending. Submitting non-empty input while Idle
// clears the input buffer, appends the user's message to the transcript at
// once and sends exactly one request. The turn ends with exactly one
// assistant message: the answer with its sources, or FailureMessage when
// the request failed for any reason. Submissions while Pending are rejected
// with ErrPending and have no effect.
//
// # Key Types
//
//   - Session: transcript, input buffer and pending flag
//   - Turn: one in-flight exchange, committed by Run
//   - Change: notification delivered to OnChange listeners
//
// # Usage
//
// Two-phase, as the TUI does it (Begin on the update loop, Run in a
// tea.Cmd):
//
//	turn, err := sess.Begin(input, sel.ScopeID(reg))
//	if err != nil {
//	    return // ErrPending or ErrEmptyInput
//	}
//	reply := turn.Run(ctx)
//
// One call, as the CLI does it:
//
//	reply, err := sess.Submit(ctx, "What is the term length?", nil)
//
// # Timeouts
//
// Every turn runs under the session timeout. Cancel aborts the in-flight
// turn. Both end in FailureMessage and return the session to Idle.
package chat
