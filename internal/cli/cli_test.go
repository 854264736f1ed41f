// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/contractchat/internal/api"
	"github.com/jeranaias/contractchat/internal/chat"
	"github.com/jeranaias/contractchat/internal/config"
	"github.com/jeranaias/contractchat/internal/logging"
	"github.com/jeranaias/contractchat/internal/model"
	"github.com/jeranaias/contractchat/internal/session"
	"github.com/jeranaias/contractchat/internal/settings"
	"github.com/jeranaias/contractchat/internal/testutil"
	"github.com/jeranaias/contractchat/internal/upload"
)

// =============================================================================
// HELPERS
// =============================================================================

type result struct {
	stdout string
	stderr string
	code   int
}

type cliEnv struct {
	t       *testing.T
	home    string
	backend *testutil.Backend
}

func newEnv(t *testing.T, keys ...string) *cliEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CONTRACTCHAT_HOME", home)
	for _, name := range []string{
		"BACKEND_URL", "TIMEOUT", "RATE_LIMIT", "CHAT_TIMEOUT", "CONTINUE_ON_ERROR",
		"STORAGE_PATH", "LOG_LEVEL", "LOG_FILE", "THEME",
	} {
		t.Setenv("CONTRACTCHAT_"+name, "")
	}
	t.Setenv("NO_COLOR", "1")
	t.Setenv("FORCE_COLOR", "")
	return &cliEnv{t: t, home: home, backend: testutil.NewBackend(t, keys...)}
}

// exec runs the command line with stdin and the fake backend's URL.
func (e *cliEnv) exec(stdin string, args ...string) result {
	e.t.Helper()
	root := NewRootCommand(BuildInfo{Version: "1.2.3", Commit: "abc123"})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))

	args = append([]string{"--backend", e.backend.URL()}, args...)
	code := run(context.Background(), root, args)
	return result{stdout: out.String(), stderr: errOut.String(), code: code}
}

func (e *cliEnv) login(key string) {
	e.t.Helper()
	res := e.exec(key+"\n", "login")
	require.Equal(e.t, ExitSuccess, res.code, res.stderr)
}

func (e *cliEnv) writePDF(name string) string {
	e.t.Helper()
	path := filepath.Join(e.home, name)
	require.NoError(e.t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0600))
	return path
}

// decodeData unmarshals the JSON envelope's data into v.
func decodeData(t *testing.T, stdout string, v interface{}) JSONResponse {
	t.Helper()
	var raw struct {
		JSONResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &raw), stdout)
	if v != nil {
		require.NoError(t, json.Unmarshal(raw.Data, v))
	}
	return raw.JSONResponse
}

// =============================================================================
// VERSION
// =============================================================================

func TestVersion(t *testing.T) {
	e := newEnv(t)

	res := e.exec("", "version")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "contractchat 1.2.3 (abc123)")

	res = e.exec("", "version", "--json")
	var v versionReport
	env := decodeData(t, res.stdout, &v)
	assert.True(t, env.Success)
	assert.Equal(t, "1.2.3", v.Version)
	assert.Equal(t, "version", env.Command)
}

func TestVersionFlag(t *testing.T) {
	e := newEnv(t)
	res := e.exec("", "--version")
	assert.Equal(t, "contractchat 1.2.3\n", res.stdout)
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	e := newEnv(t)
	res := e.exec("", "frobnicate")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "unknown command")
}

func TestRootRequiresTerminal(t *testing.T) {
	e := newEnv(t)
	res := e.exec("")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "needs a terminal")
}

// =============================================================================
// LOGIN / LOGOUT / STATUS
// =============================================================================

func TestLogin_StoresKey(t *testing.T) {
	e := newEnv(t, "key-1")
	e.backend.SetContracts(testutil.Contract("a", "lease.pdf"))

	res := e.exec("key-1\n", "login")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, session.EntryPrompt)
	assert.Contains(t, res.stdout, "Logged in")
	assert.Contains(t, res.stdout, "1 contract available.")
	assert.NotContains(t, res.stdout, "key-1")

	res = e.exec("", "status", "--json")
	var st statusReport
	decodeData(t, res.stdout, &st)
	assert.True(t, st.Authenticated)
	assert.Equal(t, 1, st.Contracts)
	assert.Equal(t, e.backend.URL(), st.Backend)
	assert.Equal(t, filepath.Join(e.home, "local.db"), st.Storage)
}

func TestLogin_RejectedKeyIsErased(t *testing.T) {
	e := newEnv(t, "key-1")

	res := e.exec("wrong\n", "login")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.stderr, session.RevokedNotice)

	res = e.exec("", "status", "--json")
	var st statusReport
	decodeData(t, res.stdout, &st)
	assert.False(t, st.Authenticated)
}

func TestLogin_EmptyInput(t *testing.T) {
	e := newEnv(t, "key-1")
	res := e.exec("", "login")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Equal(t, 0, e.backend.Count(api.PathContracts))
}

func TestStatus_Text(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")

	res := e.exec("", "status")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "logged in")
	assert.Contains(t, res.stdout, e.backend.URL())
	assert.Contains(t, res.stdout, logging.KeyFingerprint("key-1"))
	assert.Contains(t, res.stdout, "(refreshed now)")

	res = e.exec("", "status", "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var st statusReport
	decodeData(t, res.stdout, &st)
	assert.False(t, st.RefreshedAt.IsZero())
}

func TestLogout_RequiresConfirmation(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")

	res := e.exec("", "logout")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "--confirm")

	res = e.exec("", "logout", "--confirm")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "API key cleared.")

	res = e.exec("", "contracts")
	assert.Equal(t, ExitAuthError, res.code)
}

func TestLogout_JSONNeedsConfirm(t *testing.T) {
	e := newEnv(t, "key-1")
	res := e.exec("", "logout", "--json")
	assert.Equal(t, ExitUsageError, res.code)

	env := decodeData(t, res.stdout, nil)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Contains(t, *env.Error, "--confirm")
}

// =============================================================================
// CONTRACTS
// =============================================================================

func TestContracts_RequiresLogin(t *testing.T) {
	e := newEnv(t, "key-1")
	res := e.exec("", "contracts")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.stderr, ErrNotLoggedIn.Error())
}

func TestContracts_Formats(t *testing.T) {
	e := newEnv(t, "key-1")
	e.backend.SetContracts(
		model.Contract{
			ID:       model.NumericID(1),
			Filename: "lease.pdf",
			Metadata: &model.ContractMetadata{
				Title:     model.StringPtr("Office Lease"),
				Vendor:    model.StringPtr("Acme"),
				StartDate: model.StringPtr("2024-01-01"),
				EndDate:   model.StringPtr("2027-01-01"),
			},
		},
		testutil.Contract("c-2", "nda.pdf"),
	)
	e.login("key-1")

	t.Run("table", func(t *testing.T) {
		res := e.exec("", "contracts")
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		assert.Contains(t, res.stdout, "Office Lease")
		assert.Contains(t, res.stdout, "Acme")
		assert.Contains(t, res.stdout, "2024-01-01 to 2027-01-01")
		assert.Contains(t, res.stdout, "nda.pdf")
		assert.Contains(t, res.stdout, "2 contracts")
	})

	t.Run("json", func(t *testing.T) {
		res := e.exec("", "contracts", "--format", "json")
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		var contracts []model.Contract
		decodeData(t, res.stdout, &contracts)
		require.Len(t, contracts, 2)
		assert.Equal(t, "1", contracts[0].ID.String())
		assert.Contains(t, res.stdout, `"id": 1`)
		assert.Contains(t, res.stdout, `"id": "c-2"`)
	})

	t.Run("yaml", func(t *testing.T) {
		res := e.exec("", "contracts", "-f", "yaml")
		require.Equal(t, ExitSuccess, res.code, res.stderr)
		assert.Contains(t, res.stdout, "filename: lease.pdf")
		assert.Contains(t, res.stdout, "vendor: Acme")
	})

	t.Run("unsupported", func(t *testing.T) {
		res := e.exec("", "contracts", "--format", "xml")
		assert.Equal(t, ExitUsageError, res.code)
	})
}

func TestContracts_Empty(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")

	res := e.exec("", "contracts")
	require.Equal(t, ExitSuccess, res.code)
	assert.Contains(t, res.stdout, emptyRegistryText)
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_ScopedByFilename(t *testing.T) {
	e := newEnv(t, "key-1")
	e.backend.SetContracts(model.Contract{ID: model.NumericID(1), Filename: "lease.pdf"})
	e.backend.SetChatHandler(func(testutil.ChatQuery) (int, interface{}) {
		return 200, map[string]interface{}{"answer": "Three years.", "sources": []string{"Section 2.1"}}
	})
	e.login("key-1")

	res := e.exec("", "ask", "-c", "lease.pdf", "What is the term length?")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Three years.")
	assert.Contains(t, res.stdout, "Sources:")
	assert.Contains(t, res.stdout, "Section 2.1")

	chats := e.backend.RequestsTo(api.PathChat)
	require.Len(t, chats, 1)
	assert.JSONEq(t, `{"query":"What is the term length?","contract_id":1}`, string(chats[0].Body))
}

func TestAsk_UnscopedJSON(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")

	res := e.exec("", "ask", "--json", "Which", "contracts", "renew?")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var rep askReport
	decodeData(t, res.stdout, &rep)
	assert.Equal(t, "Which contracts renew?", rep.Question)
	assert.Equal(t, "echo: Which contracts renew?", rep.Answer)
	assert.Nil(t, rep.Contract)
	assert.NotNil(t, rep.Sources)

	chats := e.backend.RequestsTo(api.PathChat)
	require.Len(t, chats, 1)
	assert.JSONEq(t, `{"query":"Which contracts renew?"}`, string(chats[0].Body))
}

func TestAsk_SaveTranscript(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")

	res := e.exec("", "ask", "--json", "--save", "Who signs?")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var rep askReport
	decodeData(t, res.stdout, &rep)
	require.NotEmpty(t, rep.SavedTo)
	assert.Equal(t, filepath.Join(e.home, "exports"), filepath.Dir(rep.SavedTo))

	data, err := os.ReadFile(rep.SavedTo)
	require.NoError(t, err)
	assert.Contains(t, string(data), "> Who signs?")
	assert.Contains(t, string(data), "echo: Who signs?")
}

func TestAsk_QuestionFromStdin(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")

	res := e.exec("Who signs?\n", "ask")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "echo: Who signs?")
}

func TestAsk_Errors(t *testing.T) {
	e := newEnv(t, "key-1")
	e.backend.SetContracts(testutil.Contract("a", "lease.pdf"))
	e.login("key-1")

	res := e.exec("", "ask")
	assert.Equal(t, ExitUsageError, res.code, "no question")

	res = e.exec("", "ask", "-c", "missing.pdf", "hi")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.stderr, "missing.pdf")
	assert.Equal(t, 0, e.backend.Count(api.PathChat))
}

func TestAsk_BackendFailure(t *testing.T) {
	e := newEnv(t, "key-1")
	e.backend.SetChatHandler(func(testutil.ChatQuery) (int, interface{}) {
		return 500, map[string]string{"detail": "boom"}
	})
	e.login("key-1")

	res := e.exec("", "ask", "hello")
	assert.Equal(t, ExitGeneralError, res.code)
	assert.Contains(t, res.stderr, chat.FailureMessage)
}

func TestAsk_RejectedKeyEndsSession(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")
	e.backend.SetChatHandler(func(testutil.ChatQuery) (int, interface{}) {
		return 401, map[string]string{"detail": "Invalid API Key"}
	})

	res := e.exec("", "ask", "hello")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.stderr, session.RevokedNotice)

	res = e.exec("", "status", "--json")
	var st statusReport
	decodeData(t, res.stdout, &st)
	assert.False(t, st.Authenticated)
}

// =============================================================================
// UPLOAD
// =============================================================================

func TestUpload_SkipsNonPDFAndRefreshesOnce(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")
	pdf := e.writePDF("lease.pdf")
	txt := e.writePDF("notes.txt")
	listsBefore := e.backend.Count(api.PathContracts)

	res := e.exec("", "upload", pdf, txt)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Skipping non-PDF file: notes.txt")
	assert.Contains(t, res.stdout, "[1/1] lease.pdf")
	assert.Contains(t, res.stdout, "1 of 1 file uploaded")

	assert.Equal(t, 1, e.backend.Count(api.PathUpload))
	// One list when the session starts, one after the batch.
	assert.Equal(t, listsBefore+2, e.backend.Count(api.PathContracts))
}

func TestUpload_StopsAtFirstFailure(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")
	a, b, c := e.writePDF("a.pdf"), e.writePDF("b.pdf"), e.writePDF("c.pdf")
	e.backend.FailUpload("b.pdf", 500)

	res := e.exec("", "upload", a, b, c)
	assert.Equal(t, ExitGeneralError, res.code)
	assert.Contains(t, res.stderr, upload.FailureMessage)
	assert.Equal(t, 2, e.backend.Count(api.PathUpload))
	assert.Contains(t, res.stdout, "1 of 3 files uploaded")
}

func TestUpload_ContinueFlagJSON(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")
	a, b, c := e.writePDF("a.pdf"), e.writePDF("b.pdf"), e.writePDF("c.pdf")
	e.backend.FailUpload("b.pdf", 500)

	res := e.exec("", "upload", "--continue", "--json", a, b, c)
	assert.Equal(t, ExitGeneralError, res.code)
	assert.Equal(t, 3, e.backend.Count(api.PathUpload))

	// The report comes first, then the error envelope.
	dec := json.NewDecoder(strings.NewReader(res.stdout))
	var first struct {
		Data []uploadReport `json:"data"`
	}
	require.NoError(t, dec.Decode(&first))
	require.Len(t, first.Data, 3)
	assert.True(t, first.Data[0].OK)
	assert.False(t, first.Data[1].OK)
	assert.NotEmpty(t, first.Data[1].Error)
	assert.True(t, first.Data[2].OK)
}

func TestUpload_NoPDFs(t *testing.T) {
	e := newEnv(t, "key-1")
	e.login("key-1")
	res := e.exec("", "upload", e.writePDF("notes.txt"))
	assert.Equal(t, ExitUsageError, res.code)
	assert.Equal(t, 0, e.backend.Count(api.PathUpload))
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_Admin(t *testing.T) {
	e := newEnv(t, "admin")
	e.login("admin")

	res := e.exec("sk-new\n", "settings", "set-openai-key")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, settings.SuccessNotice)

	reqs := e.backend.RequestsTo(api.PathSettings)
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"openai_api_key":"sk-new"}`, string(reqs[0].Body))
}

func TestSettings_NonAdminKeepsSession(t *testing.T) {
	e := newEnv(t, "admin", "user")
	e.login("user")

	res := e.exec("sk-new\n", "settings", "set-openai-key")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.stderr, "Admin privileges required")

	res = e.exec("", "status", "--json")
	var st statusReport
	decodeData(t, res.stdout, &st)
	assert.True(t, st.Authenticated)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_SetGetPath(t *testing.T) {
	e := newEnv(t)

	res := e.exec("", "config", "path")
	require.Equal(t, ExitSuccess, res.code)
	assert.Equal(t, filepath.Join(e.home, "config.toml"), strings.TrimSpace(res.stdout))

	res = e.exec("", "config", "set", "upload.continue_on_error", "true")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	info, err := os.Stat(filepath.Join(e.home, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	res = e.exec("", "config", "get", "upload.continue_on_error")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "true", strings.TrimSpace(res.stdout))

	// The --backend flag is not written to the file.
	cfg, err := config.LoadFromPath(filepath.Join(e.home, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultBackendURL, cfg.Backend.URL)
}

func TestConfig_SetRejectsBadInput(t *testing.T) {
	e := newEnv(t)

	res := e.exec("", "config", "set", "bogus.key", "1")
	assert.Equal(t, ExitUsageError, res.code)

	res = e.exec("", "config", "set", "log.level", "loud")
	assert.Equal(t, ExitConfigError, res.code)

	_, err := os.Stat(filepath.Join(e.home, "config.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestConfig_ShowJSON(t *testing.T) {
	e := newEnv(t)
	res := e.exec("", "config", "show", "--json")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	var cfg config.Config
	decodeData(t, res.stdout, &cfg)
	assert.Equal(t, e.backend.URL(), cfg.Backend.URL)
}

// =============================================================================
// EXIT CODES
// =============================================================================

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", NewUsageError("bad", ""), ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "log.level", Message: "bad"}}), ExitConfigError},
		{"not logged in", ErrNotLoggedIn, ExitAuthError},
		{"unauthorized", &api.APIError{Status: 401}, ExitAuthError},
		{"forbidden wrapped", WrapError(&api.APIError{Status: 403}, "settings", "update"), ExitAuthError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, ExitTimeoutError},
		{"net refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ExitNetworkError},
		{"cobra args", errors.New("accepts 1 arg(s), received 0"), ExitUsageError},
		{"server error", &api.APIError{Status: 500}, ExitGeneralError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestUsageErrorExample(t *testing.T) {
	err := NewUsageError("no question given", `contractchat ask "hi"`)
	assert.Equal(t, "no question given\nExample: contractchat ask \"hi\"", err.Error())
}
