// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/contractchat/internal/localstore"
	"github.com/jeranaias/contractchat/internal/logging"
)

// User-facing text for the entry flow.
const (
	EntryPrompt   = "Please enter your API Key to access the Chatbot:"
	ClearPrompt   = "Are you sure you want to clear your API Key?"
	RevokedNotice = "Invalid API Key or session expired."
)

var (
	// ErrEmptyCredential is returned when saving a blank key.
	ErrEmptyCredential = errors.New("API key must not be empty")

	// ErrNotConfirmed is returned when the user declines to clear the key.
	ErrNotConfirmed = errors.New("clear not confirmed")
)

// =============================================================================
// STATE
// =============================================================================

// State is the authentication state of the session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
)

// String returns the state name.
func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Reason explains a transition.
type Reason string

const (
	ReasonStored   Reason = "stored"   // key found in storage at startup
	ReasonEntered  Reason = "entered"  // key supplied by the user
	ReasonDeclined Reason = "declined" // user dismissed the prompt
	ReasonRevoked  Reason = "revoked"  // backend rejected the key
	ReasonCleared  Reason = "cleared"  // user cleared the key
)

// Event is delivered to listeners after every transition.
type Event struct {
	State  State
	Reason Reason

	// Notice is text to show on the entry screen, if any.
	Notice string
}

// Prompter asks for a credential. ok is false when the user declines.
type Prompter interface {
	PromptCredential(ctx context.Context, message string) (key string, ok bool, err error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, message string) (string, bool, error)

// PromptCredential implements Prompter.
func (f PromptFunc) PromptCredential(ctx context.Context, message string) (string, bool, error) {
	return f(ctx, message)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(message string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(message string) bool {
	return f(message)
}

// =============================================================================
// GUARD
// =============================================================================

// Guard owns the access credential. Safe for concurrent use.
type Guard struct {
	mu        sync.RWMutex
	store     localstore.Store
	logger    *log.Logger
	key       string
	state     State
	notice    string
	since     time.Time
	listeners []func(Event)

	onAuthenticated func(ctx context.Context)
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard creates an unauthenticated guard over store.
func NewGuard(store localstore.Store, opts ...GuardOption) *Guard {
	g := &Guard{
		store:  store,
		logger: logging.Discard(),
		since:  time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnAuthenticated sets the hook run after every successful authentication,
// typically a contract registry refresh.
func (g *Guard) OnAuthenticated(fn func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAuthenticated = fn
}

// OnChange registers a listener for state transitions.
func (g *Guard) OnChange(fn func(Event)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Start restores a stored credential or, when none is stored, asks p for
// one. A declined prompt (or a nil p) leaves the guard unauthenticated and
// is not an error.
func (g *Guard) Start(ctx context.Context, p Prompter) error {
	key, ok, err := g.store.Get(localstore.KeyAPIKey)
	if err != nil {
		return fmt.Errorf("failed to read stored API key: %w", err)
	}

	if ok && strings.TrimSpace(key) != "" {
		g.authenticate(ctx, strings.TrimSpace(key), ReasonStored)
		return nil
	}

	if p == nil {
		g.transition(StateUnauthenticated, ReasonDeclined, "", "")
		return nil
	}

	entered, ok, err := p.PromptCredential(ctx, EntryPrompt)
	if err != nil {
		return fmt.Errorf("failed to prompt for API key: %w", err)
	}
	if !ok || strings.TrimSpace(entered) == "" {
		g.logger.Info("API key prompt declined")
		g.transition(StateUnauthenticated, ReasonDeclined, "", "")
		return nil
	}
	return g.Save(ctx, entered)
}

// Save stores key durably and authenticates with it.
func (g *Guard) Save(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyCredential
	}
	if err := g.store.Set(localstore.KeyAPIKey, key); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}
	g.authenticate(ctx, key, ReasonEntered)
	return nil
}

func (g *Guard) authenticate(ctx context.Context, key string, reason Reason) {
	g.transition(StateAuthenticated, reason, key, "")
	g.logger.Info("session authenticated", "reason", string(reason), "key_fp", logging.KeyFingerprint(key))

	g.mu.RLock()
	hook := g.onAuthenticated
	g.mu.RUnlock()
	if hook != nil {
		hook(ctx)
	}
}

// Credential returns the key while authenticated, otherwise "".
// It implements api.CredentialSource.
func (g *Guard) Credential() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != StateAuthenticated {
		return ""
	}
	return g.key
}

// Authenticated reports whether the session is unlocked.
func (g *Guard) Authenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateAuthenticated
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Notice returns the text to show on the entry screen, if any.
func (g *Guard) Notice() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.notice
}

// Revoke erases the stored key and returns to the unauthenticated state.
// The in-memory state changes even if erasing storage fails.
func (g *Guard) Revoke(notice string) error {
	return g.teardown(ReasonRevoked, notice)
}

// HandleAuthFailure revokes the session after the backend rejected the
// key. Calls while already unauthenticated are ignored.
func (g *Guard) HandleAuthFailure(err error) {
	if !g.Authenticated() {
		return
	}
	g.logger.Warn("revoking session after auth failure", "err", err)
	if rerr := g.Revoke(RevokedNotice); rerr != nil {
		g.logger.Error("failed to erase stored API key", "err", rerr)
	}
}

// Clear erases the credential after c confirms.
func (g *Guard) Clear(c Confirmer) error {
	if c == nil || !c.Confirm(ClearPrompt) {
		return ErrNotConfirmed
	}
	return g.teardown(ReasonCleared, "")
}

// teardown performs the erase-and-reset transition under one lock.
func (g *Guard) teardown(reason Reason, notice string) error {
	g.mu.Lock()
	storeErr := g.store.Delete(localstore.KeyAPIKey)
	g.key = ""
	g.state = StateUnauthenticated
	g.notice = notice
	g.since = time.Now()
	ev := Event{State: g.state, Reason: reason, Notice: notice}
	listeners := append([]func(Event){}, g.listeners...)
	g.mu.Unlock()

	g.logger.Info("session ended", "reason", string(reason))
	for _, fn := range listeners {
		fn(ev)
	}
	if storeErr != nil {
		return fmt.Errorf("failed to erase stored API key: %w", storeErr)
	}
	return nil
}

func (g *Guard) transition(state State, reason Reason, key, notice string) {
	g.mu.Lock()
	g.state = state
	g.key = key
	g.notice = notice
	g.since = time.Now()
	ev := Event{State: state, Reason: reason, Notice: notice}
	listeners := append([]func(Event){}, g.listeners...)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// =============================================================================
// STATUS
// =============================================================================

// Status is a snapshot for display.
type Status struct {
	State       State
	Fingerprint string
	Since       time.Time
	Notice      string
}

// GetStatus returns the current status. The key itself is never included.
func (g *Guard) GetStatus() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fp := "none"
	if g.state == StateAuthenticated {
		fp = logging.KeyFingerprint(g.key)
	}
	return Status{
		State:       g.state,
		Fingerprint: fp,
		Since:       g.since,
		Notice:      g.notice,
	}
}
