// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings forwards server-side settings to the backend.
//
// The OpenAI key sent here belongs to the backend. It is never stored on
// the client, unlike the access credential owned by the session guard.
package settings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/logging"
)

// User-facing text.
const (
	SuccessNotice   = "API Key updated successfully! Mock mode disabled."
	FallbackFailure = "Failed to update settings"
)

// NoticeDuration is how long the success notice stays up before the
// settings dialog closes.
const NoticeDuration = 1500 * time.Millisecond

// ErrEmptyKey is returned when no key was entered.
var ErrEmptyKey = errors.New("OpenAI API key must not be empty")

// Updater sends settings. *api.Client implements it.
type Updater interface {
	UpdateSettings(ctx context.Context, req api.SettingsRequest) error
}

// Result is a successful update.
type Result struct {
	Notice  string
	Dismiss time.Duration
}

// Error is a failed update. Its message is the text to show the user.
type Error struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Service updates backend settings.
type Service struct {
	updater Updater
	logger  *log.Logger
}

// NewService creates a Service. logger may be nil.
func NewService(u Updater, logger *log.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{updater: u, logger: logger}
}

// Update forwards openAIKey to the backend. On failure the returned
// *Error carries the backend's detail text or FallbackFailure.
func (s *Service) Update(ctx context.Context, openAIKey string) (Result, error) {
	openAIKey = strings.TrimSpace(openAIKey)
	if openAIKey == "" {
		return Result{}, &Error{Message: ErrEmptyKey.Error(), Err: ErrEmptyKey}
	}

	err := s.updater.UpdateSettings(ctx, api.SettingsRequest{OpenAIAPIKey: openAIKey})
	if err != nil {
		msg := api.Detail(err)
		if msg == "" {
			msg = FallbackFailure
		}
		s.logger.Warn("settings update failed", "err", err)
		return Result{}, &Error{Message: msg, Err: err}
	}

	s.logger.Info("backend settings updated", "openai_key_fp", logging.KeyFingerprint(openAIKey))
	return Result{Notice: SuccessNotice, Dismiss: NoticeDuration}, nil
}
