// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// CONTRACT ID
// =============================================================================

// ContractID is an opaque contract identifier issued by the backend.
//
// The backend normally issues string IDs (UUIDs), but numeric IDs are
// accepted as well. The original JSON form is remembered so the ID goes
// back to the backend exactly as it was received.
type ContractID struct {
	raw     string
	numeric bool
}

// StringID returns a ContractID that is encoded as a JSON string.
func StringID(s string) ContractID {
	return ContractID{raw: s}
}

// NumericID returns a ContractID that is encoded as a JSON number.
func NumericID(n int64) ContractID {
	return ContractID{raw: fmt.Sprintf("%d", n), numeric: true}
}

// String returns the identifier text.
func (id ContractID) String() string {
	return id.raw
}

// Equal reports whether two IDs name the same contract.
func (id ContractID) Equal(other ContractID) bool {
	return id.raw == other.raw
}

// IsZero reports whether the ID is empty.
func (id ContractID) IsZero() bool {
	return id.raw == ""
}

// MarshalJSON encodes the ID in the form it was received.
func (id ContractID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.raw), nil
	}
	return json.Marshal(id.raw)
}

// MarshalYAML encodes the ID as a scalar.
func (id ContractID) MarshalYAML() (interface{}, error) {
	if id.numeric {
		if n, err := strconv.ParseInt(id.raw, 10, 64); err == nil {
			return n, nil
		}
	}
	return id.raw, nil
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ContractID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ContractID{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid contract id: %w", err)
		}
		*id = ContractID{raw: s}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid contract id %s: %w", string(data), err)
	}
	*id = ContractID{raw: n.String(), numeric: true}
	return nil
}

// =============================================================================
// CONTRACT
// =============================================================================

// ContractMetadata holds fields extracted from a contract by the backend.
// Every field is optional; nil means unknown, not empty.
type ContractMetadata struct {
	Title     *string `json:"title,omitempty" yaml:"title,omitempty"`
	StartDate *string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Vendor    *string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
}

// IsEmpty reports whether no metadata field is known.
func (m *ContractMetadata) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.Title == nil && m.StartDate == nil && m.EndDate == nil && m.Vendor == nil
}

// Contract is a processed PDF contract as tracked by the backend.
type Contract struct {
	ID       ContractID        `json:"id" yaml:"id"`
	Filename string            `json:"filename" yaml:"filename"`
	Metadata *ContractMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Title returns the extracted title, or "" when unknown.
func (c Contract) Title() string {
	return deref(c.metadata().Title)
}

// StartDate returns the extracted start date, or "" when unknown.
func (c Contract) StartDate() string {
	return deref(c.metadata().StartDate)
}

// EndDate returns the extracted end date, or "" when unknown.
func (c Contract) EndDate() string {
	return deref(c.metadata().EndDate)
}

// Vendor returns the extracted vendor, or "" when unknown.
func (c Contract) Vendor() string {
	return deref(c.metadata().Vendor)
}

// DisplayName returns the filename, falling back to the ID.
func (c Contract) DisplayName() string {
	if strings.TrimSpace(c.Filename) != "" {
		return c.Filename
	}
	return c.ID.String()
}

// Summary returns a one-line description of the known metadata fields.
func (c Contract) Summary() string {
	var parts []string
	if t := c.Title(); t != "" {
		parts = append(parts, t)
	}
	if v := c.Vendor(); v != "" {
		parts = append(parts, v)
	}
	start, end := c.StartDate(), c.EndDate()
	switch {
	case start != "" && end != "":
		parts = append(parts, start+" → "+end)
	case start != "":
		parts = append(parts, "from "+start)
	case end != "":
		parts = append(parts, "until "+end)
	}
	return strings.Join(parts, " | ")
}

func (c Contract) metadata() *ContractMetadata {
	if c.Metadata == nil {
		return &ContractMetadata{}
	}
	return c.Metadata
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns a pointer to s. Handy for building metadata literals.
func StringPtr(s string) *string {
	return &s
}
