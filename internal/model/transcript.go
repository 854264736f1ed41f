// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sync"

// Transcript is an ordered, append-only list of chat messages.
// It is cleared only by creating a new one. Safe for concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	messages []ChatMessage
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]ChatMessage, 0, 16)}
}

// Append adds a message and returns the new length.
func (t *Transcript) Append(msg ChatMessage) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg.clone())
	return len(t.messages)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Messages returns a copy of all messages in order.
func (t *Transcript) Messages() []ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ChatMessage, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}
