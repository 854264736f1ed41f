// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package testutil

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime/debug"
	"sync"
	"testing"

	"github.com/jeranaias/contractchat/internal/model"
)

// ChatQuery is a decoded chat request as the backend saw it.
type ChatQuery struct {
	Query string

	// ContractID is the raw JSON of contract_id, or nil when absent.
	ContractID json.RawMessage

	// HasContractID reports whether the key was present at all.
	HasContractID bool
}

// ChatHandler produces the status and JSON body for a chat request.
type ChatHandler func(q ChatQuery) (status int, body interface{})

// Request is one recorded request.
type Request struct {
	Method    string
	Path      string
	APIKey    string
	RequestID string
	UserAgent string
	Body      []byte

	// UploadFilename is the multipart filename for uploads.
	UploadFilename string
}

// Backend is a fake contract chat server.
type Backend struct {
	t      testing.TB
	server *httptest.Server

	mu           sync.Mutex
	validKeys    map[string]bool
	adminKey     string
	contracts    []model.Contract
	chatHandler  ChatHandler
	failUploads  map[string]int
	forceStatus  map[string]int
	requests     []Request
	release      chan struct{}
	blockChat    bool
	chatArrivals chan struct{}
}

// NewBackend starts a fake backend accepting the given keys. The first key
// is also the admin key. The server is closed when the test ends.
func NewBackend(t testing.TB, keys ...string) *Backend {
	t.Helper()
	b := &Backend{
		t:            t,
		validKeys:    make(map[string]bool),
		failUploads:  make(map[string]int),
		forceStatus:  make(map[string]int),
		contracts:    []model.Contract{},
		chatArrivals: make(chan struct{}, 64),
	}
	for _, k := range keys {
		b.validKeys[k] = true
	}
	if len(keys) > 0 {
		b.adminKey = keys[0]
	}
	b.chatHandler = func(q ChatQuery) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"answer": "echo: " + q.Query, "sources": []string{}}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/contracts", b.handleContracts)
	mux.HandleFunc("/api/upload", b.handleUpload)
	mux.HandleFunc("/api/chat", b.handleChat)
	mux.HandleFunc("/api/settings", b.handleSettings)

	b.server = httptest.NewServer(chain(mux, b.recoveryMiddleware, b.recordMiddleware, b.authMiddleware))
	t.Cleanup(b.Close)
	return b
}

// URL returns the base URL of the fake backend.
func (b *Backend) URL() string {
	return b.server.URL
}

// Close stops the server and releases any blocked chat requests.
func (b *Backend) Close() {
	b.Release()
	b.server.Close()
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetContracts replaces the contract listing.
func (b *Backend) SetContracts(contracts ...model.Contract) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contracts = append([]model.Contract{}, contracts...)
}

// SetChatHandler replaces the chat response generator.
func (b *Backend) SetChatHandler(h ChatHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatHandler = h
}

// FailUpload makes uploads of filename fail with status.
func (b *Backend) FailUpload(filename string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failUploads[filename] = status
}

// ForceStatus makes every request to path answer with status after auth.
func (b *Backend) ForceStatus(path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forceStatus[path] = status
}

// RevokeKey makes key invalid for subsequent requests.
func (b *Backend) RevokeKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.validKeys, key)
}

// BlockChat holds chat requests until Release is called.
func (b *Backend) BlockChat() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockChat = true
	b.release = make(chan struct{})
}

// Release unblocks held chat requests.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.release != nil {
		close(b.release)
		b.release = nil
	}
	b.blockChat = false
}

// ChatArrivals signals once per chat request that reached the handler.
func (b *Backend) ChatArrivals() <-chan struct{} {
	return b.chatArrivals
}

// =============================================================================
// INSPECTION
// =============================================================================

// Requests returns all recorded requests in arrival order.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// RequestsTo returns recorded requests for path.
func (b *Backend) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range b.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests hit path.
func (b *Backend) Count(path string) int {
	return len(b.RequestsTo(path))
}

// Contract builds a contract without metadata.
func Contract(id, filename string) model.Contract {
	return model.Contract{ID: model.StringID(id), Filename: filename}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func (b *Backend) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				b.t.Errorf("fake backend panic: %v\n%s", err, debug.Stack())
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// recordMiddleware stores the request. The multipart body is parsed later
// by the upload handler, so uploads record the filename only.
func (b *Backend) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			APIKey:    r.Header.Get("X-API-Key"),
			RequestID: r.Header.Get("X-Request-ID"),
			UserAgent: r.Header.Get("User-Agent"),
		}
		if r.URL.Path == "/api/upload" {
			if err := r.ParseMultipartForm(32 << 20); err == nil {
				if fh, ok := r.MultipartForm.File["file"]; ok && len(fh) > 0 {
					rec.UploadFilename = fh[0].Filename
				}
			}
		} else if r.Body != nil {
			rec.Body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(rec.Body))
		}

		b.mu.Lock()
		b.requests = append(b.requests, rec)
		b.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeJSON(w, http.StatusForbidden, detail("Not authenticated"))
			return
		}
		if !b.keyValid(key) {
			writeJSON(w, http.StatusUnauthorized, detail("Invalid API Key"))
			return
		}

		b.mu.Lock()
		status, forced := b.forceStatus[r.URL.Path]
		b.mu.Unlock()
		if forced {
			writeJSON(w, status, detail(fmt.Sprintf("forced status %d", status)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) keyValid(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.validKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// =============================================================================
// HANDLERS
// =============================================================================

func (b *Backend) handleContracts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, detail("Method Not Allowed"))
		return
	}
	b.mu.Lock()
	contracts := append([]model.Contract{}, b.contracts...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, contracts)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, detail("Method Not Allowed"))
		return
	}
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, detail("invalid form"))
			return
		}
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, detail("field required"))
		return
	}
	name := files[0].Filename

	b.mu.Lock()
	status, fail := b.failUploads[name]
	id := fmt.Sprintf("c-%d", len(b.contracts)+1)
	if !fail {
		b.contracts = append(b.contracts, Contract(id, name))
	}
	b.mu.Unlock()

	if fail {
		writeJSON(w, status, detail("Could not extract text from PDF"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Processed successfully",
		"id":      id,
	})
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, detail("Method Not Allowed"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, detail("unreadable body"))
		return
	}

	b.mu.Lock()
	handler := b.chatHandler
	release := b.release
	blocked := b.blockChat
	b.mu.Unlock()

	select {
	case b.chatArrivals <- struct{}{}:
	default:
	}

	if blocked && release != nil {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, detail("invalid json"))
		return
	}
	q := ChatQuery{}
	if v, ok := raw["query"]; ok {
		_ = json.Unmarshal(v, &q.Query)
	}
	if v, ok := raw["contract_id"]; ok {
		q.ContractID = v
		q.HasContractID = true
	}

	status, resp := handler(q)
	writeJSON(w, status, resp)
}

func (b *Backend) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, detail("Method Not Allowed"))
		return
	}
	if r.Header.Get("X-API-Key") != b.adminKey {
		writeJSON(w, http.StatusForbidden, detail("Admin privileges required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Settings updated"})
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
