// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/contractchat/internal/logging"
	"github.com/jeranaias/contractchat/internal/model"
)

// Fetcher lists contracts from the backend. *api.Client implements it.
type Fetcher interface {
	ListContracts(ctx context.Context) ([]model.Contract, error)
}

// Registry is the client-side cache of processed contracts.
// Safe for concurrent use.
type Registry struct {
	fetcher Fetcher
	logger  *log.Logger

	mu          sync.RWMutex
	contracts   []model.Contract
	index       map[string]int
	version     uint64
	lastErr     error
	refreshedAt time.Time
	listeners   []func()
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry fed by f.
func New(f Fetcher, opts ...Option) *Registry {
	r := &Registry{
		fetcher:   f,
		logger:    logging.Discard(),
		contracts: []model.Contract{},
		index:     map[string]int{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh fetches the listing and replaces the snapshot wholesale.
// On failure the previous snapshot is kept and the error is returned for
// display; it is also available from LastError.
func (r *Registry) Refresh(ctx context.Context) error {
	contracts, err := r.fetcher.ListContracts(ctx)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		r.logger.Warn("failed to fetch contracts", "err", err)
		return err
	}
	r.Replace(contracts)
	return nil
}

// Replace installs contracts as the new snapshot, preserving order.
func (r *Registry) Replace(contracts []model.Contract) {
	snapshot := make([]model.Contract, len(contracts))
	copy(snapshot, contracts)
	index := make(map[string]int, len(snapshot))
	for i, c := range snapshot {
		if _, dup := index[c.ID.String()]; !dup {
			index[c.ID.String()] = i
		}
	}

	r.mu.Lock()
	r.contracts = snapshot
	r.index = index
	r.version++
	r.lastErr = nil
	r.refreshedAt = time.Now()
	listeners := append([]func(){}, r.listeners...)
	r.mu.Unlock()

	r.logger.Debug("contract registry replaced", "count", len(snapshot))
	for _, fn := range listeners {
		fn()
	}
}

// OnChange registers a listener run after every successful replace.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Contracts returns a copy of the snapshot in backend order.
func (r *Registry) Contracts() []model.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Contract, len(r.contracts))
	copy(out, r.contracts)
	return out
}

// Lookup finds a contract by ID.
func (r *Registry) Lookup(id model.ContractID) (model.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id.String()]
	if !ok {
		return model.Contract{}, false
	}
	return r.contracts[i], true
}

// Len returns the number of contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}

// Version increases by one on every successful replace.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// LastError returns the error of the most recent failed refresh, cleared by
// the next successful one.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// RefreshedAt returns when the snapshot was last replaced.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}
