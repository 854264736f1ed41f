// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/jeranaias/contractchat/internal/model"
)

// ChatRequest is the body of one chat turn.
// ContractID is omitted from the JSON entirely when nil.
type ChatRequest struct {
	Query      string            `json:"query"`
	ContractID *model.ContractID `json:"contract_id,omitempty"`
}

// ChatResponse is the backend's answer to a chat turn.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

// Chat sends one question and returns the answer with its citations.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, OpChat, http.MethodPost, PathChat, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
