// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/chat"
	"github.com/jeranaias/contractchat/internal/config"
	"github.com/jeranaias/contractchat/internal/export"
	"github.com/jeranaias/contractchat/internal/localstore"
	"github.com/jeranaias/contractchat/internal/logging"
	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/registry"
	"github.com/jeranaias/contractchat/internal/session"
	"github.com/jeranaias/contractchat/internal/settings"
	"github.com/jeranaias/contractchat/internal/upload"
)

// Options customizes New. Only Config is required.
type Options struct {
	Config *config.Config

	// Version is reported in the User-Agent header.
	Version string

	// Store replaces the SQLite store at the configured path.
	Store localstore.Store

	// Logger replaces the file logger built from the config.
	Logger *log.Logger

	// HTTPClient replaces the pooled client built from the config.
	HTTPClient *http.Client

	// Progress receives per-file upload results.
	Progress upload.ProgressFunc
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Store     localstore.Store
	Guard     *session.Guard
	Client    *api.Client
	Registry  *registry.Registry
	Selection *registry.Selection
	Uploader  *upload.Uploader
	Chat      *chat.Session
	Settings  *settings.Service

	logCloser *logging.Logger
}

// New builds an App. The caller owns it and must call Close.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: nil config")
	}
	cfg := opts.Config
	a := &App{Config: cfg}

	logger := opts.Logger
	if logger == nil {
		file, err := cfg.LogFile()
		if err != nil {
			return nil, err
		}
		l, err := logging.New(logging.Options{Level: cfg.Log.Level, File: file})
		if err != nil {
			return nil, fmt.Errorf("failed to open log: %w", err)
		}
		a.logCloser = l
		logger = l.Logger
	}
	a.Logger = logger

	store := opts.Store
	if store == nil {
		path, err := cfg.StoragePath()
		if err != nil {
			a.Close()
			return nil, err
		}
		master, err := localstore.LoadOrCreateMasterKey(config.MasterKeyPath(path))
		if err != nil {
			a.Close()
			return nil, err
		}
		s, err := localstore.OpenSQLite(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		sealed, err := localstore.NewSealedStore(s, master)
		if err != nil {
			s.Close()
			a.Close()
			return nil, err
		}
		store = sealed
	}
	a.Store = store

	a.Guard = session.NewGuard(store, session.WithLogger(logger))

	clientOpts := []api.Option{
		api.WithTimeout(time.Duration(cfg.Backend.TimeoutSecs) * time.Second),
		api.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.RateBurst),
		api.WithLogger(logger),
	}
	if opts.Version != "" {
		clientOpts = append(clientOpts, api.WithUserAgent("contractchat/"+opts.Version))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	a.Client = api.NewClient(cfg.Backend.URL, api.CredentialFunc(a.Guard.Credential), clientOpts...)

	a.Registry = registry.New(a.Client, registry.WithLogger(logger))
	a.Selection = &registry.Selection{}

	uploadOpts := []upload.Option{
		upload.WithPolicy(upload.PolicyFromConfig(cfg.Upload.ContinueOnError)),
		upload.WithLogger(logger),
	}
	if opts.Progress != nil {
		uploadOpts = append(uploadOpts, upload.WithProgress(opts.Progress))
	}
	a.Uploader = upload.New(a.Client, a.Registry.Refresh, uploadOpts...)

	a.Chat = chat.NewSession(a.Client,
		chat.WithTimeout(time.Duration(cfg.Chat.TimeoutSecs)*time.Second),
		chat.WithLogger(logger),
	)
	a.Settings = settings.NewService(a.Client, logger)

	a.wire()
	return a, nil
}

func (a *App) wire() {
	a.Guard.OnAuthenticated(func(ctx context.Context) {
		// Failure is kept in Registry.LastError for the sidebar.
		_ = a.Registry.Refresh(ctx)
	})

	a.Guard.OnChange(func(ev session.Event) {
		if ev.State != session.StateUnauthenticated {
			return
		}
		a.Chat.Reset()
		a.Selection.Clear()
		a.Registry.Replace(nil)
	})

	a.Client.OnAuthFailure(func(op api.Operation, err error) {
		if shouldRevoke(a.Config.Auth.RevokeOnAnyCall, op, err) {
			a.Guard.HandleAuthFailure(err)
		}
	})
}

// shouldRevoke decides whether an unauthorized response ends the session.
// A rejected contract listing always does. Other calls do when anyCall is
// set, except a 403 from settings, which means the key is valid but lacks
// admin rights.
func shouldRevoke(anyCall bool, op api.Operation, err error) bool {
	if op == api.OpListContracts {
		return true
	}
	if !anyCall {
		return false
	}
	var apiErr *api.APIError
	if op == api.OpUpdateSettings && errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
		return false
	}
	return true
}

// Start restores or prompts for the credential. See session.Guard.Start.
func (a *App) Start(ctx context.Context, p session.Prompter) error {
	return a.Guard.Start(ctx, p)
}

// Login stores key and authenticates, refreshing the registry.
func (a *App) Login(ctx context.Context, key string) error {
	return a.Guard.Save(ctx, key)
}

// ClearSession deletes the stored key after confirmation.
func (a *App) ClearSession(c session.Confirmer) error {
	return a.Guard.Clear(c)
}

// Scope returns the contract ID the next chat turn is scoped to, or nil.
func (a *App) Scope() *model.ContractID {
	return a.Selection.ScopeID(a.Registry)
}

// Ask runs one chat turn scoped by the current selection.
func (a *App) Ask(ctx context.Context, question string) (model.ChatMessage, error) {
	return a.Chat.Submit(ctx, question, a.Scope())
}

// Upload sends paths as one batch.
func (a *App) Upload(ctx context.Context, paths []string) (upload.Batch, error) {
	return a.Uploader.Upload(ctx, paths)
}

// ExportTranscript writes the current conversation to the export directory
// in the configured format and returns the file path.
func (a *App) ExportTranscript() (string, error) {
	msgs := a.Chat.Messages()
	if len(msgs) == 0 {
		return "", export.ErrEmpty
	}
	dir, err := a.Config.ExportDir()
	if err != nil {
		return "", err
	}
	opts := export.DefaultOptions(dir)
	exporter, err := export.ForFormat(a.Config.Export.Format, opts)
	if err != nil {
		return "", err
	}

	doc := export.Document{Messages: msgs, Backend: a.Config.Backend.URL}
	if c, ok := a.Selection.Resolve(a.Registry); ok {
		doc.Scope = c.DisplayName()
	}
	path, err := export.ToFile(doc, exporter, opts)
	if err != nil {
		a.Logger.Error("transcript export failed", "err", err)
		return "", err
	}
	a.Logger.Info("transcript exported", "path", path, "messages", len(msgs))
	return path, nil
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
