// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/contractchat/internal/model"
)

// stubFetcher returns queued results in order.
type stubFetcher struct {
	mu      sync.Mutex
	results [][]model.Contract
	errs    []error
	calls   int
}

func (f *stubFetcher) ListContracts(context.Context) ([]model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

func contract(id, name string) model.Contract {
	return model.Contract{ID: model.StringID(id), Filename: name}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry_RefreshReplacesWholesale(t *testing.T) {
	f := &stubFetcher{results: [][]model.Contract{
		{contract("1", "a.pdf"), contract("2", "b.pdf")},
		{contract("3", "c.pdf")},
	}}
	r := New(f)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, uint64(1), r.Version())

	require.NoError(t, r.Refresh(context.Background()))
	got := r.Contracts()
	require.Len(t, got, 1)
	assert.Equal(t, "c.pdf", got[0].Filename)
	_, ok := r.Lookup(model.StringID("1"))
	assert.False(t, ok, "replaced, not merged")
	assert.Equal(t, uint64(2), r.Version())
}

func TestRegistry_RefreshKeepsOrder(t *testing.T) {
	f := &stubFetcher{results: [][]model.Contract{
		{contract("z", "z.pdf"), contract("a", "a.pdf"), contract("m", "m.pdf")},
	}}
	r := New(f)
	require.NoError(t, r.Refresh(context.Background()))

	var names []string
	for _, c := range r.Contracts() {
		names = append(names, c.Filename)
	}
	assert.Equal(t, []string{"z.pdf", "a.pdf", "m.pdf"}, names)
}

func TestRegistry_FailedRefreshKeepsPrevious(t *testing.T) {
	boom := errors.New("connection refused")
	f := &stubFetcher{
		results: [][]model.Contract{{contract("1", "a.pdf")}},
		errs:    []error{nil, boom},
	}
	r := New(f)
	require.NoError(t, r.Refresh(context.Background()))

	err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, r.LastError(), boom)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, uint64(1), r.Version())
}

func TestRegistry_SuccessClearsLastError(t *testing.T) {
	f := &stubFetcher{
		results: [][]model.Contract{nil, {contract("1", "a.pdf")}},
		errs:    []error{errors.New("x")},
	}
	r := New(f)
	require.Error(t, r.Refresh(context.Background()))
	require.NoError(t, r.Refresh(context.Background()))
	assert.NoError(t, r.LastError())
}

func TestRegistry_ContractsIsCopy(t *testing.T) {
	r := New(&stubFetcher{})
	r.Replace([]model.Contract{contract("1", "a.pdf")})

	got := r.Contracts()
	got[0].Filename = "mutated"
	c, ok := r.Lookup(model.StringID("1"))
	require.True(t, ok)
	assert.Equal(t, "a.pdf", c.Filename)
}

func TestRegistry_OnChange(t *testing.T) {
	r := New(&stubFetcher{errs: []error{errors.New("x")}})
	fired := 0
	r.OnChange(func() { fired++ })

	_ = r.Refresh(context.Background())
	assert.Equal(t, 0, fired)

	r.Replace(nil)
	assert.Equal(t, 1, fired)
}

// =============================================================================
// SELECTION TESTS
// =============================================================================

func TestSelection_ZeroValue(t *testing.T) {
	var s Selection
	r := New(&stubFetcher{})

	_, ok := s.ID()
	assert.False(t, ok)
	assert.Nil(t, s.ScopeID(r))
	assert.False(t, s.Stale(r))
}

func TestSelection_ScopeIDUsesRegistryEntry(t *testing.T) {
	r := New(&stubFetcher{})
	r.Replace([]model.Contract{{ID: model.NumericID(1), Filename: "a.pdf"}})

	var s Selection
	s.Select(model.StringID("1"))

	id := s.ScopeID(r)
	require.NotNil(t, id)
	out, err := id.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "1", string(out), "numeric form comes from the registry")
}

func TestSelection_StaleFallsBackToNoScope(t *testing.T) {
	r := New(&stubFetcher{})
	r.Replace([]model.Contract{contract("1", "a.pdf")})

	var s Selection
	s.Select(model.StringID("1"))
	require.NotNil(t, s.ScopeID(r))

	r.Replace([]model.Contract{contract("2", "b.pdf")})
	assert.True(t, s.Stale(r))
	assert.Nil(t, s.ScopeID(r))
	id, ok := s.ID()
	assert.True(t, ok, "stale id is kept")
	assert.Equal(t, "1", id.String())

	// The contract reappears: scoping resumes.
	r.Replace([]model.Contract{contract("1", "a.pdf")})
	assert.False(t, s.Stale(r))
	assert.NotNil(t, s.ScopeID(r))
}

func TestSelection_Toggle(t *testing.T) {
	var s Selection
	s.Toggle(model.StringID("1"))
	assert.True(t, s.IsSelected(model.StringID("1")))

	s.Toggle(model.StringID("2"))
	assert.True(t, s.IsSelected(model.StringID("2")))

	s.Toggle(model.StringID("2"))
	_, ok := s.ID()
	assert.False(t, ok)
}

func TestSelection_SelectZeroClears(t *testing.T) {
	var s Selection
	s.Select(model.StringID("1"))
	s.Select(model.ContractID{})
	_, ok := s.ID()
	assert.False(t, ok)
}
