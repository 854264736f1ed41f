// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/config"
	"github.com/jeranaias/contractchat/internal/export"
	"github.com/jeranaias/contractchat/internal/localstore"
	"github.com/jeranaias/contractchat/internal/logging"
	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/session"
	"github.com/jeranaias/contractchat/internal/testutil"
)

func newTestApp(t *testing.T, backend *testutil.Backend, mutate ...func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.URL = backend.URL()
	cfg.Backend.RateLimit = 0
	for _, fn := range mutate {
		fn(cfg)
	}

	a, err := New(Options{
		Config:  cfg,
		Version: "1.2.3",
		Store:   localstore.NewMemoryStore(),
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func supply(key string) session.Prompter {
	return session.PromptFunc(func(context.Context, string) (string, bool, error) {
		return key, true, nil
	})
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0600))
	return path
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_OpensConfiguredStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONTRACTCHAT_HOME", dir)
	cfg := config.Default()

	a, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, a.Store.Set(localstore.KeyAPIKey, "persisted"))
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(dir, "local.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "contractchat.log"))
	assert.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "master.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := localstore.OpenSQLite(filepath.Join(dir, "local.db"))
	require.NoError(t, err)
	stored, ok, err := raw.Get(localstore.KeyAPIKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, localstore.IsSealed(stored))
	assert.NotContains(t, stored, "persisted")
	require.NoError(t, raw.Close())

	b, err := New(Options{Config: cfg})
	require.NoError(t, err)
	defer b.Close()
	v, ok, err := b.Store.Get(localstore.KeyAPIKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)
}

// =============================================================================
// CONTROL FLOW
// =============================================================================

func TestApp_LoginRefreshesRegistry(t *testing.T) {
	backend := testutil.NewBackend(t, "key-1")
	backend.SetContracts(testutil.Contract("a", "a.pdf"), testutil.Contract("b", "b.pdf"))
	a := newTestApp(t, backend)

	require.NoError(t, a.Start(context.Background(), supply("key-1")))

	assert.True(t, a.Guard.Authenticated())
	assert.Equal(t, 2, a.Registry.Len())
	reqs := backend.RequestsTo(api.PathContracts)
	require.Len(t, reqs, 1)
	assert.Equal(t, "key-1", reqs[0].APIKey)
	assert.Equal(t, "contractchat/1.2.3", reqs[0].UserAgent)
}

func TestApp_InvalidStoredKeyRevokes(t *testing.T) {
	backend := testutil.NewBackend(t, "good")
	a := newTestApp(t, backend)
	require.NoError(t, a.Store.Set(localstore.KeyAPIKey, "stale"))

	require.NoError(t, a.Start(context.Background(), nil))

	assert.False(t, a.Guard.Authenticated())
	assert.Equal(t, session.RevokedNotice, a.Guard.Notice())
	_, ok, err := a.Store.Get(localstore.KeyAPIKey)
	require.NoError(t, err)
	assert.False(t, ok, "stored key erased")
}

func TestApp_AskUsesSelectionScope(t *testing.T) {
	backend := testutil.NewBackend(t, "key-1")
	backend.SetContracts(testutil.Contract("c-7", "msa.pdf"))
	a := newTestApp(t, backend)
	require.NoError(t, a.Login(context.Background(), "key-1"))

	a.Selection.Select(model.StringID("c-7"))
	msg, err := a.Ask(context.Background(), "Who is the vendor?")
	require.NoError(t, err)
	assert.Equal(t, "echo: Who is the vendor?", msg.Content)

	a.Selection.Clear()
	_, err = a.Ask(context.Background(), "Any termination clause?")
	require.NoError(t, err)

	chats := backend.RequestsTo(api.PathChat)
	require.Len(t, chats, 2)
	var scoped, unscoped map[string]interface{}
	require.NoError(t, json.Unmarshal(chats[0].Body, &scoped))
	require.NoError(t, json.Unmarshal(chats[1].Body, &unscoped))
	assert.Equal(t, "c-7", scoped["contract_id"])
	assert.NotContains(t, unscoped, "contract_id")
	assert.Equal(t, 4, a.Chat.Len())
}

func TestApp_ExportTranscript(t *testing.T) {
	backend := testutil.NewBackend(t, "key-1")
	backend.SetContracts(testutil.Contract("c-7", "msa.pdf"))
	dir := t.TempDir()
	a := newTestApp(t, backend, func(c *config.Config) { c.Export.Dir = dir })
	require.NoError(t, a.Login(context.Background(), "key-1"))

	_, err := a.ExportTranscript()
	assert.ErrorIs(t, err, export.ErrEmpty)

	a.Selection.Select(model.StringID("c-7"))
	_, err = a.Ask(context.Background(), "Who is the vendor?")
	require.NoError(t, err)

	path, err := a.ExportTranscript()
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".md"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scope: msa.pdf")
	assert.Contains(t, string(data), "echo: Who is the vendor?")

	a.Config.Export.Format = "json"
	path, err = a.ExportTranscript()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".json"))
}

func TestApp_ChatOutlivesBackendTimeout(t *testing.T) {
	backend := testutil.NewBackend(t, "key-1")
	backend.SetChatHandler(func(q testutil.ChatQuery) (int, interface{}) {
		time.Sleep(1500 * time.Millisecond)
		return http.StatusOK, map[string]interface{}{"answer": "Five years.", "sources": []string{}}
	})
	a := newTestApp(t, backend, func(c *config.Config) {
		c.Backend.TimeoutSecs = 1
		c.Chat.TimeoutSecs = 10
	})
	require.NoError(t, a.Login(context.Background(), "key-1"))

	reply, err := a.Ask(context.Background(), "What is the term length?")
	require.NoError(t, err)
	require.False(t, reply.Failed)
	assert.Equal(t, "Five years.", reply.Content)
}

func TestApp_UploadRefreshesOnce(t *testing.T) {
	backend := testutil.NewBackend(t, "key-1")
	a := newTestApp(t, backend)
	require.NoError(t, a.Login(context.Background(), "key-1"))
	before := backend.Count(api.PathContracts)

	dir := t.TempDir()
	batch, err := a.Upload(context.Background(), []string{
		writePDF(t, dir, "one.pdf"),
		writePDF(t, dir, "two.pdf"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, before+1, backend.Count(api.PathContracts))
	assert.Equal(t, 2, a.Registry.Len())
}

func TestApp_ChatUnauthorizedPolicy(t *testing.T) {
	t.Run("revoke on any call", func(t *testing.T) {
		backend := testutil.NewBackend(t, "key-1")
		a := newTestApp(t, backend)
		require.NoError(t, a.Login(context.Background(), "key-1"))
		backend.ForceStatus(api.PathChat, http.StatusUnauthorized)

		_, err := a.Ask(context.Background(), "hello")
		require.NoError(t, err)

		assert.False(t, a.Guard.Authenticated())
		assert.Equal(t, 0, a.Chat.Len(), "session teardown resets the transcript")
	})

	t.Run("contracts only", func(t *testing.T) {
		backend := testutil.NewBackend(t, "key-1")
		a := newTestApp(t, backend, func(c *config.Config) { c.Auth.RevokeOnAnyCall = false })
		require.NoError(t, a.Login(context.Background(), "key-1"))
		backend.ForceStatus(api.PathChat, http.StatusUnauthorized)

		msg, err := a.Ask(context.Background(), "hello")
		require.NoError(t, err)

		assert.True(t, a.Guard.Authenticated())
		assert.True(t, msg.Failed)
		assert.Equal(t, 2, a.Chat.Len())
	})
}

func TestApp_ClearSessionResetsState(t *testing.T) {
	backend := testutil.NewBackend(t, "key-1")
	backend.SetContracts(testutil.Contract("a", "a.pdf"))
	a := newTestApp(t, backend)
	require.NoError(t, a.Login(context.Background(), "key-1"))
	a.Selection.Select(model.StringID("a"))
	_, err := a.Ask(context.Background(), "q")
	require.NoError(t, err)

	err = a.ClearSession(session.ConfirmFunc(func(string) bool { return false }))
	assert.ErrorIs(t, err, session.ErrNotConfirmed)
	assert.True(t, a.Guard.Authenticated())

	require.NoError(t, a.ClearSession(session.ConfirmFunc(func(string) bool { return true })))

	assert.False(t, a.Guard.Authenticated())
	assert.Equal(t, 0, a.Chat.Len())
	assert.Equal(t, 0, a.Registry.Len())
	_, selected := a.Selection.ID()
	assert.False(t, selected)
	assert.Nil(t, a.Scope())
}

func TestApp_SettingsRequiresAdmin(t *testing.T) {
	backend := testutil.NewBackend(t, "admin", "user")
	a := newTestApp(t, backend)
	require.NoError(t, a.Login(context.Background(), "user"))

	_, err := a.Settings.Update(context.Background(), "sk-test")
	require.Error(t, err)
	assert.Equal(t, "Admin privileges required", err.Error())
	assert.True(t, a.Guard.Authenticated(), "a non-admin key stays valid")
}

func TestShouldRevoke(t *testing.T) {
	unauthorized := &api.APIError{Status: http.StatusUnauthorized}
	forbidden := &api.APIError{Status: http.StatusForbidden}

	tests := []struct {
		name    string
		anyCall bool
		op      api.Operation
		err     error
		want    bool
	}{
		{"contracts always", false, api.OpListContracts, forbidden, true},
		{"chat with any-call", true, api.OpChat, unauthorized, true},
		{"chat without any-call", false, api.OpChat, unauthorized, false},
		{"upload with any-call", true, api.OpUpload, forbidden, true},
		{"settings 401", true, api.OpUpdateSettings, unauthorized, true},
		{"settings 403 is not admin", true, api.OpUpdateSettings, forbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRevoke(tt.anyCall, tt.op, tt.err))
		})
	}
}
