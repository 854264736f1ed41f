// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/logging"
	"github.com/jeranaias/contractchat/internal/model"
)

// FailureMessage replaces the answer when a turn fails.
const FailureMessage = "Sorry, I encountered an error."

// DefaultTimeout bounds a single turn.
const DefaultTimeout = 120 * time.Second

var (
	// ErrPending is returned when a turn is already in flight.
	ErrPending = errors.New("a question is already pending")

	// ErrEmptyInput is returned for blank input.
	ErrEmptyInput = errors.New("input is empty")
)

// Asker sends one chat request. *api.Client implements it.
type Asker interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// =============================================================================
// CHANGES
// =============================================================================

// ChangeKind says what changed.
type ChangeKind int

const (
	// ChangeAppended means the transcript grew by Message.
	ChangeAppended ChangeKind = iota

	// ChangeReset means the transcript was replaced by an empty one.
	ChangeReset
)

// Change is delivered to listeners after the session state changes.
type Change struct {
	Kind    ChangeKind
	Message model.ChatMessage

	// Len is the transcript length after the change.
	Len int

	// Pending is the pending flag after the change.
	Pending bool
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one chat conversation. Safe for concurrent use.
type Session struct {
	asker   Asker
	logger  *log.Logger
	timeout time.Duration

	mu         sync.Mutex
	transcript *model.Transcript
	input      string
	current    *Turn
	generation uint64
	listeners  []func(Change)
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout sets the per-turn timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates an idle session with an empty transcript.
func NewSession(asker Asker, opts ...Option) *Session {
	s := &Session{
		asker:      asker,
		logger:     logging.Discard(),
		timeout:    DefaultTimeout,
		transcript: model.NewTranscript(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a listener for transcript changes.
func (s *Session) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Begin starts a turn: it checks the input, appends the user message,
// clears the input buffer and marks the session Pending. The request is
// not sent until Run is called on the returned Turn.
func (s *Session) Begin(input string, scope *model.ContractID) (*Turn, error) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrPending
	}
	if strings.TrimSpace(input) == "" {
		s.mu.Unlock()
		return nil, ErrEmptyInput
	}

	var scopeCopy *model.ContractID
	if scope != nil {
		id := *scope
		scopeCopy = &id
	}

	msg := model.NewUserMessage(input)
	n := s.transcript.Append(msg)
	s.input = ""
	t := &Turn{
		session:    s,
		query:      input,
		scope:      scopeCopy,
		generation: s.generation,
		startedAt:  time.Now(),
	}
	s.current = t
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, Change{Kind: ChangeAppended, Message: msg, Len: n, Pending: true})
	return t, nil
}

// Submit runs a whole turn and returns the assistant message.
// The only errors are ErrPending and ErrEmptyInput; request failures are
// reported as the FailureMessage reply.
func (s *Session) Submit(ctx context.Context, input string, scope *model.ContractID) (model.ChatMessage, error) {
	t, err := s.Begin(input, scope)
	if err != nil {
		return model.ChatMessage{}, err
	}
	return t.Run(ctx), nil
}

// Cancel aborts the in-flight turn, if any, and reports whether there was
// one. The turn still ends with FailureMessage.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	t := s.current
	s.mu.Unlock()
	if t == nil {
		return false
	}
	t.abort()
	return true
}

// Reset cancels any in-flight turn and starts an empty transcript. A
// cancelled turn that completes later is discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	t := s.current
	s.current = nil
	s.generation++
	s.transcript = model.NewTranscript()
	s.input = ""
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if t != nil {
		t.abort()
	}
	notify(listeners, Change{Kind: ChangeReset})
}

// Pending reports whether a turn is in flight.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []model.ChatMessage {
	s.mu.Lock()
	tr := s.transcript
	s.mu.Unlock()
	return tr.Messages()
}

// Len returns the transcript length.
func (s *Session) Len() int {
	s.mu.Lock()
	tr := s.transcript
	s.mu.Unlock()
	return tr.Len()
}

// Input returns the input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the input buffer. Input is disabled while a turn is
// pending, so it returns false and changes nothing then.
func (s *Session) SetInput(v string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return false
	}
	s.input = v
	return true
}

// commit appends the turn's reply and returns the session to Idle.
// Replies from a turn of an earlier generation are dropped.
func (s *Session) commit(t *Turn, msg model.ChatMessage) bool {
	s.mu.Lock()
	if s.current != t || t.generation != s.generation {
		s.mu.Unlock()
		return false
	}
	n := s.transcript.Append(msg)
	s.current = nil
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	notify(listeners, Change{Kind: ChangeAppended, Message: msg, Len: n, Pending: false})
	return true
}

func (s *Session) snapshotListeners() []func(Change) {
	return append([]func(Change){}, s.listeners...)
}

func notify(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
