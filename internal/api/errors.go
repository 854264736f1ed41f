// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotConfigured indicates no credential is available for the call.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrUnauthorized matches any 401 or 403 response.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrResponseTooLarge indicates the body exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op     Operation
	Status int

	// Detail is the backend's "detail" message, if it sent one.
	Detail string

	// Body is the raw response body, truncated for display.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s failed (HTTP %d): %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.IsAuthFailure()
}

// IsAuthFailure reports whether the status signals a rejected credential.
func (e *APIError) IsAuthFailure() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// IsAuthFailure reports whether err is, or wraps, an authorization failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// Detail returns the backend-provided detail text carried by err, or "".
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// maxErrorBody bounds the raw body kept on an APIError.
const maxErrorBody = 512

// newAPIError builds an APIError from a response status and body.
func newAPIError(op Operation, status int, body []byte) *APIError {
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxErrorBody {
		raw = raw[:maxErrorBody] + "..."
	}
	return &APIError{
		Op:     op,
		Status: status,
		Detail: parseDetail(body),
		Body:   raw,
	}
}

// parseDetail extracts the "detail" field from an error body.
// The field is either a string or a list of validation errors with "msg".
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
