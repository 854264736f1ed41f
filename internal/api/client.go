// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/contractchat/internal/logging"
)

// Configuration constants for the backend client.
const (
	// DefaultBaseURL is where the backend listens in a local setup.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 60 * time.Second

	// DefaultUserAgent is sent when no version-specific agent is set.
	DefaultUserAgent = "contractchat/dev"

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// HeaderAPIKey carries the session credential.
	HeaderAPIKey = "X-API-Key"

	// HeaderRequestID carries a per-request correlation ID.
	HeaderRequestID = "X-Request-ID"
)

// Operation names a backend call for logging and auth-failure routing.
type Operation string

const (
	OpListContracts  Operation = "list_contracts"
	OpUpload         Operation = "upload"
	OpChat           Operation = "chat"
	OpUpdateSettings Operation = "update_settings"
)

// Backend endpoint paths.
const (
	PathContracts = "/api/contracts"
	PathUpload    = "/api/upload"
	PathChat      = "/api/chat"
	PathSettings  = "/api/settings"
)

// CredentialSource supplies the credential attached to each request.
// An empty string means no credential is available.
type CredentialSource interface {
	Credential() string
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func() string

// Credential implements CredentialSource.
func (f CredentialFunc) Credential() string {
	return f()
}

// StaticCredential is a fixed credential, mostly useful in tests and
// one-shot commands.
type StaticCredential string

// Credential implements CredentialSource.
func (s StaticCredential) Credential() string {
	return string(s)
}

// AuthFailureFunc is called after any call is rejected with 401 or 403.
type AuthFailureFunc func(op Operation, err error)

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the contract chat backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	limiter    *rate.Limiter
	logger     *log.Logger
	userAgent  string

	// timeout bounds each non-chat exchange. Chat turns are bounded by the
	// caller's context.
	timeout time.Duration

	mu            sync.RWMutex
	onAuthFailure AuthFailureFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the deadline of every exchange except OpChat.
// A non-positive d disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = max(d, 0)
	}
}

// WithRateLimit limits outbound calls to rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header value.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a backend client. An empty baseURL selects
// DefaultBaseURL. creds may be nil, in which case every call fails with
// ErrNotConfigured.
func NewClient(baseURL string, creds CredentialSource, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: newHTTPClient(),
		timeout:    DefaultTimeout,
		creds:      creds,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     logging.Discard(),
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient returns a pooled client that requires TLS 1.2 or later.
// It has no overall timeout; deadlines travel on the request context.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OnAuthFailure registers the hook run whenever a call is rejected with
// 401 or 403. It replaces any previous hook.
func (c *Client) OnAuthFailure(fn AuthFailureFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

func (c *Client) credential() string {
	if c.creds == nil {
		return ""
	}
	return strings.TrimSpace(c.creds.Credential())
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// request describes one backend call.
type request struct {
	op          Operation
	method      string
	path        string
	body        io.Reader
	contentType string
}

// do performs req and returns the response body of a 2xx response.
// Non-2xx responses become *APIError; 401/403 also fire the auth hook.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	key := c.credential()
	if key == "" {
		return nil, fmt.Errorf("%s: %w", r.op, ErrNotConfigured)
	}

	if r.op != OpChat && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", r.op, err)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", r.op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set(HeaderAPIKey, key)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	logger := c.logger.With("op", string(r.op), "request_id", requestID)
	c.logRequest(logger, req, key)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("request failed", "err", err, "duration", time.Since(start))
		return nil, fmt.Errorf("%s: request failed: %w", r.op, err)
	}
	defer resp.Body.Close()
	c.logResponse(logger, resp, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(r.op, resp.StatusCode, body)
		if apiErr.IsAuthFailure() {
			c.handleAuthFailure(r.op, apiErr)
		}
		return nil, apiErr
	}
	return body, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response
// into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, op Operation, method, path string, in, out interface{}) error {
	r := request{op: op, method: method, path: path}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		r.body = bytes.NewReader(payload)
		r.contentType = "application/json"
	}

	body, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", op, err)
	}
	return nil
}

func (c *Client) handleAuthFailure(op Operation, err error) {
	c.mu.RLock()
	fn := c.onAuthFailure
	c.mu.RUnlock()

	c.logger.Warn("credential rejected by backend", "op", string(op), "err", err)
	if fn != nil {
		fn(op, err)
	}
}

// readResponse reads the response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

// logRequest logs a request without headers or body.
// SECURITY: only the key fingerprint is logged.
func (c *Client) logRequest(logger *log.Logger, req *http.Request, key string) {
	logger.Debug("api request",
		"method", req.Method,
		"path", req.URL.Path,
		"key_fp", logging.KeyFingerprint(key),
	)
}

// logResponse logs status and duration only.
func (c *Client) logResponse(logger *log.Logger, resp *http.Response, d time.Duration) {
	logger.Debug("api response", "status", resp.StatusCode, "duration", d)
}
