// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_RejectsUnknownKey(t *testing.T) {
	b := NewBackend(t, "good")

	req, err := http.NewRequest(http.MethodGet, b.URL()+"/api/contracts", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "bad")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, b.Count("/api/contracts"))
}

func TestBackend_RecordsChatBody(t *testing.T) {
	b := NewBackend(t, "good")

	req, err := http.NewRequest(http.MethodPost, b.URL()+"/api/chat", strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "good")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	reqs := b.RequestsTo("/api/chat")
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"query":"hi"}`, string(reqs[0].Body))
}
