// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"sync"

	"github.com/jeranaias/contractchat/internal/model"
)

// Selection holds at most one contract ID. The zero value selects nothing.
// Safe for concurrent use.
type Selection struct {
	mu       sync.RWMutex
	id       model.ContractID
	selected bool
}

// Select sets the selection to id. A zero ID clears it.
func (s *Selection) Select(id model.ContractID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.selected = !id.IsZero()
}

// Toggle selects id, or clears the selection if id is already selected.
func (s *Selection) Toggle(id model.ContractID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected && s.id.Equal(id) {
		s.id, s.selected = model.ContractID{}, false
		return
	}
	s.id = id
	s.selected = !id.IsZero()
}

// Clear removes the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.selected = model.ContractID{}, false
}

// ID returns the selected ID, if any. The ID may be stale.
func (s *Selection) ID() (model.ContractID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.selected
}

// IsSelected reports whether id is the current selection.
func (s *Selection) IsSelected(id model.ContractID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected && s.id.Equal(id)
}

// Resolve looks the selection up in reg. It returns false when nothing is
// selected or the selected contract is no longer listed.
func (s *Selection) Resolve(reg *Registry) (model.Contract, bool) {
	id, ok := s.ID()
	if !ok || reg == nil {
		return model.Contract{}, false
	}
	return reg.Lookup(id)
}

// Stale reports whether something is selected but missing from reg.
func (s *Selection) Stale(reg *Registry) bool {
	if _, ok := s.ID(); !ok {
		return false
	}
	_, found := s.Resolve(reg)
	return !found
}

// ScopeID returns the contract_id to send with a chat turn: the registry's
// copy of the selected ID, or nil when nothing valid is selected.
func (s *Selection) ScopeID(reg *Registry) *model.ContractID {
	c, ok := s.Resolve(reg)
	if !ok {
		return nil
	}
	id := c.ID
	return &id
}
