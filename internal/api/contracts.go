// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/jeranaias/contractchat/internal/model"
)

// ListContracts fetches every processed contract, in backend order.
func (c *Client) ListContracts(ctx context.Context) ([]model.Contract, error) {
	var contracts []model.Contract
	if err := c.doJSON(ctx, OpListContracts, http.MethodGet, PathContracts, nil, &contracts); err != nil {
		return nil, err
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	return contracts, nil
}
