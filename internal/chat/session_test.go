// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/registry"
	"github.com/jeranaias/contractchat/internal/testutil"
)

const testKey = "key-1"

func newBackendSession(t *testing.T, opts ...Option) (*Session, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t, testKey)
	client := api.NewClient(backend.URL(), api.StaticCredential(testKey))
	return NewSession(client, opts...), backend
}

// =============================================================================
// TRANSCRIPT PROPERTIES
// =============================================================================

func TestSession_NTurnsYield2NMessagesInOrder(t *testing.T) {
	sess, backend := newBackendSession(t)
	backend.SetChatHandler(func(q testutil.ChatQuery) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"answer": "re: " + q.Query}
	})

	const n = 5
	for i := 0; i < n; i++ {
		_, err := sess.Submit(context.Background(), fmt.Sprintf("q%d", i), nil)
		require.NoError(t, err)
	}

	msgs := sess.Messages()
	require.Len(t, msgs, 2*n)
	for i := 0; i < n; i++ {
		assert.Equal(t, model.RoleUser, msgs[2*i].Role)
		assert.Equal(t, fmt.Sprintf("q%d", i), msgs[2*i].Content)
		assert.Equal(t, model.RoleAssistant, msgs[2*i+1].Role)
		assert.Equal(t, fmt.Sprintf("re: q%d", i), msgs[2*i+1].Content)
	}
	assert.Equal(t, n, backend.Count(api.PathChat))
}

func TestSession_TermLengthScenario(t *testing.T) {
	backend := testutil.NewBackend(t, testKey)
	backend.SetContracts(model.Contract{ID: model.NumericID(1), Filename: "a.pdf"})
	backend.SetChatHandler(func(q testutil.ChatQuery) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"answer": "2 years", "sources": []string{"a.pdf p.3"}}
	})
	client := api.NewClient(backend.URL(), api.StaticCredential(testKey))

	reg := registry.New(client)
	require.NoError(t, reg.Refresh(context.Background()))
	var sel registry.Selection
	sel.Select(reg.Contracts()[0].ID)

	sess := NewSession(client)
	_, err := sess.Submit(context.Background(), "What is the term length?", sel.ScopeID(reg))
	require.NoError(t, err)

	reqs := backend.RequestsTo(api.PathChat)
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"query":"What is the term length?","contract_id":1}`, string(reqs[0].Body))

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is the term length?", msgs[0].Content)
	assert.Empty(t, msgs[0].Sources)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "2 years", msgs[1].Content)
	assert.Equal(t, []string{"a.pdf p.3"}, msgs[1].Sources)
}

func TestSession_NoSelectionOmitsContractID(t *testing.T) {
	sess, backend := newBackendSession(t)
	var got testutil.ChatQuery
	backend.SetChatHandler(func(q testutil.ChatQuery) (int, interface{}) {
		got = q
		return http.StatusOK, map[string]interface{}{"answer": "ok"}
	})

	var sel registry.Selection
	reg := registry.New(nil)
	_, err := sess.Submit(context.Background(), "anything?", sel.ScopeID(reg))
	require.NoError(t, err)

	assert.False(t, got.HasContractID, "contract_id must be absent, not zero or empty")
	reqs := backend.RequestsTo(api.PathChat)
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"query":"anything?"}`, string(reqs[0].Body))
}

func TestSession_FailureAppendsExactlyOneMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"bad request", http.StatusBadRequest},
		{"forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, backend := newBackendSession(t)
			backend.ForceStatus(api.PathChat, tt.status)

			reply, err := sess.Submit(context.Background(), "q", nil)
			require.NoError(t, err, "request errors are swallowed")

			assert.Equal(t, FailureMessage, reply.Content)
			assert.True(t, reply.Failed)
			msgs := sess.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, model.RoleAssistant, msgs[1].Role)
			assert.Equal(t, FailureMessage, msgs[1].Content)
			assert.False(t, sess.Pending())
		})
	}
}

func TestSession_NetworkFailure(t *testing.T) {
	client := api.NewClient("http://127.0.0.1:1", api.StaticCredential(testKey))
	sess := NewSession(client)

	reply, err := sess.Submit(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, FailureMessage, reply.Content)
	assert.Equal(t, 2, sess.Len())
}

// =============================================================================
// PENDING STATE
// =============================================================================

func TestSession_SubmitWhilePendingIsNoOp(t *testing.T) {
	sess, backend := newBackendSession(t)
	backend.BlockChat()

	turn, err := sess.Begin("first", nil)
	require.NoError(t, err)
	assert.True(t, sess.Pending())
	assert.Equal(t, 1, sess.Len(), "user message is visible before the reply")

	done := make(chan model.ChatMessage, 1)
	go func() { done <- turn.Run(context.Background()) }()
	<-backend.ChatArrivals()

	_, err = sess.Begin("second", nil)
	assert.ErrorIs(t, err, ErrPending)
	_, err = sess.Submit(context.Background(), "third", nil)
	assert.ErrorIs(t, err, ErrPending)

	assert.Equal(t, 1, sess.Len())
	assert.Equal(t, 1, backend.Count(api.PathChat))

	backend.Release()
	<-done
	assert.False(t, sess.Pending())
	assert.Equal(t, 2, sess.Len())
	assert.Equal(t, 1, backend.Count(api.PathChat))
}

func TestSession_BeginClearsInput(t *testing.T) {
	sess := NewSession(&stubAsker{})
	require.True(t, sess.SetInput("hello"))

	turn, err := sess.Begin(sess.Input(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", sess.Input())
	assert.False(t, sess.SetInput("typing while pending"))

	turn.Run(context.Background())
	assert.True(t, sess.SetInput("again"))
	assert.Equal(t, "again", sess.Input())
}

func TestSession_EmptyInputRejected(t *testing.T) {
	asker := &stubAsker{}
	sess := NewSession(asker)

	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := sess.Submit(context.Background(), in, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Equal(t, 0, sess.Len())
	assert.Equal(t, 0, asker.count())
}

func TestTurn_RunTwiceSendsOnce(t *testing.T) {
	asker := &stubAsker{}
	sess := NewSession(asker)

	turn, err := sess.Begin("q", nil)
	require.NoError(t, err)
	a := turn.Run(context.Background())
	b := turn.Run(context.Background())

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 1, asker.count())
	assert.Equal(t, 2, sess.Len())
}

// =============================================================================
// TIMEOUT / CANCEL / RESET
// =============================================================================

func TestSession_TimeoutEndsInFailure(t *testing.T) {
	sess, backend := newBackendSession(t, WithTimeout(50*time.Millisecond))
	backend.BlockChat()

	reply, err := sess.Submit(context.Background(), "slow", nil)
	require.NoError(t, err)
	assert.Equal(t, FailureMessage, reply.Content)
	assert.False(t, sess.Pending())
}

func TestSession_CancelInFlight(t *testing.T) {
	sess, backend := newBackendSession(t)
	backend.BlockChat()

	turn, err := sess.Begin("slow", nil)
	require.NoError(t, err)
	done := make(chan model.ChatMessage, 1)
	go func() { done <- turn.Run(context.Background()) }()
	<-backend.ChatArrivals()

	assert.True(t, sess.Cancel())
	select {
	case reply := <-done:
		assert.Equal(t, FailureMessage, reply.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled turn did not finish")
	}
	assert.False(t, sess.Pending())
	assert.Equal(t, 2, sess.Len())
	assert.False(t, sess.Cancel(), "nothing left to cancel")
}

func TestSession_CancelBeforeRun(t *testing.T) {
	asker := &stubAsker{honorCtx: true}
	sess := NewSession(asker)

	turn, err := sess.Begin("q", nil)
	require.NoError(t, err)
	require.True(t, sess.Cancel())

	reply := turn.Run(context.Background())
	assert.Equal(t, FailureMessage, reply.Content)
}

func TestSession_ResetDiscardsLateReply(t *testing.T) {
	sess, backend := newBackendSession(t)
	backend.BlockChat()

	turn, err := sess.Begin("old", nil)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		turn.Run(context.Background())
		close(done)
	}()
	<-backend.ChatArrivals()

	sess.Reset()
	<-done

	assert.Equal(t, 0, sess.Len())
	assert.False(t, sess.Pending())
}

// =============================================================================
// LISTENERS
// =============================================================================

func TestSession_OnChangeFiresOnEveryGrowth(t *testing.T) {
	sess := NewSession(&stubAsker{})
	var mu sync.Mutex
	var lens []int
	var pending []bool
	sess.OnChange(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		if c.Kind == ChangeAppended {
			lens = append(lens, c.Len)
			pending = append(pending, c.Pending)
		}
	})

	for i := 0; i < 3; i++ {
		_, err := sess.Submit(context.Background(), "q", nil)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, lens)
	assert.Equal(t, []bool{true, false, true, false, true, false}, pending)
}

// stubAsker answers immediately.
type stubAsker struct {
	mu       sync.Mutex
	calls    int
	honorCtx bool
}

func (s *stubAsker) Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.honorCtx {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return &api.ChatResponse{Answer: "a: " + req.Query}, nil
}

func (s *stubAsker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
