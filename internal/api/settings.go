// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
)

// SettingsRequest updates server-side settings.
type SettingsRequest struct {
	OpenAIAPIKey string `json:"openai_api_key"`
}

// UpdateSettings forwards settings to the backend. The response body is
// not consumed beyond error detail.
func (c *Client) UpdateSettings(ctx context.Context, req SettingsRequest) error {
	return c.doJSON(ctx, OpUpdateSettings, http.MethodPost, PathSettings, req, nil)
}
