// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/model"
)

// Turn is one in-flight exchange created by Session.Begin.
type Turn struct {
	session    *Session
	query      string
	scope      *model.ContractID
	generation uint64
	startedAt  time.Time

	once   sync.Once
	result model.ChatMessage

	mu      sync.Mutex
	aborted bool
	cancel  context.CancelFunc
}

// Query returns the submitted text.
func (t *Turn) Query() string {
	return t.query
}

// Scope returns the contract the turn is scoped to, or nil.
func (t *Turn) Scope() *model.ContractID {
	return t.scope
}

// Run sends the request and commits exactly one assistant message, which
// it returns. Failures of any kind commit FailureMessage. Calling Run again
// returns the same message without sending anything.
func (t *Turn) Run(ctx context.Context) model.ChatMessage {
	t.once.Do(func() {
		t.result = t.run(ctx)
	})
	return t.result
}

func (t *Turn) run(ctx context.Context) model.ChatMessage {
	s := t.session

	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	if t.aborted {
		cancel()
	}
	t.mu.Unlock()

	resp, err := s.asker.Chat(ctx, api.ChatRequest{Query: t.query, ContractID: t.scope})
	if err == nil && resp == nil {
		err = errors.New("empty chat response")
	}

	logger := s.logger.With("scoped", t.scope != nil, "duration", time.Since(t.startedAt).Round(time.Millisecond))
	var msg model.ChatMessage
	switch {
	case err != nil:
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("chat turn timed out", "timeout", s.timeout)
		} else if errors.Is(err, context.Canceled) {
			logger.Info("chat turn cancelled")
		} else {
			logger.Warn("chat turn failed", "err", err)
		}
		msg = model.NewFailureMessage(FailureMessage)
	default:
		logger.Debug("chat turn answered", "sources", len(resp.Sources))
		msg = model.NewAssistantMessage(resp.Answer, resp.Sources)
	}

	if !s.commit(t, msg) {
		logger.Debug("discarded reply from reset session")
	}
	return msg
}

// abort cancels the request, or marks the turn so Run cancels at once.
func (t *Turn) abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = true
	if t.cancel != nil {
		t.cancel()
	}
}
