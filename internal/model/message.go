// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ChatMessage is a single entry in a chat transcript.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Failed marks the assistant message that stands in for a failed request.
	Failed bool `json:"failed,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant reply. Sources are copied and
// dropped entirely when empty.
func NewAssistantMessage(content string, sources []string) ChatMessage {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
	if len(sources) > 0 {
		msg.Sources = append([]string(nil), sources...)
	}
	return msg
}

// NewFailureMessage creates the assistant message appended when a request fails.
func NewFailureMessage(content string) ChatMessage {
	msg := NewAssistantMessage(content, nil)
	msg.Failed = true
	return msg
}

// HasSources reports whether the message carries citations.
func (m ChatMessage) HasSources() bool {
	return len(m.Sources) > 0
}

// clone returns a copy that shares no slices with m.
func (m ChatMessage) clone() ChatMessage {
	if m.Sources != nil {
		m.Sources = append([]string(nil), m.Sources...)
	}
	return m
}
