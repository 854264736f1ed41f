// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/contractchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the root configuration for the contractchat client.
type Config struct {
	Backend BackendConfig `toml:"backend" json:"backend"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Upload  UploadConfig  `toml:"upload" json:"upload"`
	Auth    AuthConfig    `toml:"auth" json:"auth"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Export  ExportConfig  `toml:"export" json:"export"`
}

// BackendConfig describes how to reach the contract chat backend.
type BackendConfig struct {
	// URL is the backend base URL, e.g. http://localhost:8000.
	URL string `toml:"url" json:"url"`

	// TimeoutSecs bounds every non-chat request.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// RateLimit is the client-side request rate in requests per second.
	// Zero disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`

	// RateBurst is the token bucket size used with RateLimit.
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
}

// ChatConfig controls chat turns.
type ChatConfig struct {
	// TimeoutSecs bounds a single question/answer turn.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// UploadConfig controls batch uploads.
type UploadConfig struct {
	// ContinueOnError keeps uploading the rest of a batch after a failure.
	ContinueOnError bool `toml:"continue_on_error" json:"continue_on_error"`
}

// AuthConfig controls session handling.
type AuthConfig struct {
	// RevokeOnAnyCall clears the stored API key when any backend call is
	// rejected as unauthorized, not only the contract listing.
	RevokeOnAnyCall bool `toml:"revoke_on_any_call" json:"revoke_on_any_call"`
}

// StorageConfig locates the local key/value store.
type StorageConfig struct {
	// Path is the SQLite file. Empty means ~/.contractchat/local.db.
	Path string `toml:"path" json:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `toml:"level" json:"level"`

	// File receives log output. Empty means ~/.contractchat/contractchat.log.
	File string `toml:"file" json:"file"`
}

// UIConfig controls the terminal interface.
type UIConfig struct {
	// Theme is auto, dark or light.
	Theme string `toml:"theme" json:"theme"`

	// RenderMarkdown renders answers through glamour.
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`
}

// ExportConfig controls transcript export.
type ExportConfig struct {
	// Dir receives exported transcripts. Empty means ~/.contractchat/exports.
	Dir string `toml:"dir" json:"dir"`

	// Format is markdown or json.
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Defaults.
const (
	DefaultBackendURL   = "http://localhost:8000"
	DefaultTimeoutSecs  = 60
	DefaultChatTimeout  = 120
	DefaultRateLimit    = 5.0
	DefaultRateBurst    = 10
	DefaultLogLevel     = "info"
	DefaultTheme        = "auto"
	DefaultExportFormat = "markdown"
	maxTimeoutSecs      = 3600
	envPrefix           = "CONTRACTCHAT_"
	redacted            = "[REDACTED]"
	configDirName       = ".contractchat"
	configFileTOML      = "config.toml"
	configFileJSON      = "config.json"
	defaultLogFileName  = "contractchat.log"
	defaultStoreName    = "local.db"
	defaultExportDir    = "exports"
	defaultMasterKey    = "master.key"
	configFileHeaderURL = "https://github.com/jeranaias/contractchat"
)

// ValidThemes lists accepted ui.theme values.
var ValidThemes = []string{"auto", "dark", "light"}

// ValidExportFormats lists accepted export.format values.
var ValidExportFormats = []string{"markdown", "json"}

// ValidLogLevels lists accepted log.level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error", "fatal"}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:         DefaultBackendURL,
			TimeoutSecs: DefaultTimeoutSecs,
			RateLimit:   DefaultRateLimit,
			RateBurst:   DefaultRateBurst,
		},
		Chat: ChatConfig{
			TimeoutSecs: DefaultChatTimeout,
		},
		Upload: UploadConfig{
			ContinueOnError: false,
		},
		Auth: AuthConfig{
			RevokeOnAnyCall: true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		UI: UIConfig{
			Theme:          DefaultTheme,
			RenderMarkdown: true,
		},
		Export: ExportConfig{
			Format: DefaultExportFormat,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory. CONTRACTCHAT_HOME overrides
// the default of ~/.contractchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv(envPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileTOML), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileJSON), nil
}

// EnsureConfigDir creates the config directory with owner-only access.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// StoragePath returns the resolved SQLite store path.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return expandHome(c.Storage.Path)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultStoreName), nil
}

// MasterKeyPath returns the key file that encrypts the store at storePath.
// It sits next to the database.
func MasterKeyPath(storePath string) string {
	return filepath.Join(filepath.Dir(storePath), defaultMasterKey)
}

// LogFile returns the resolved log file path.
func (c *Config) LogFile() (string, error) {
	if c.Log.File != "" {
		return expandHome(c.Log.File)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultLogFileName), nil
}

// ExportDir returns the resolved transcript export directory.
func (c *Config) ExportDir() (string, error) {
	if c.Export.Dir != "" {
		return expandHome(c.Export.Dir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultExportDir), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads config.toml, falling back to config.json and then defaults.
// Environment overrides apply last, then the result is validated.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, err
	}

	switch {
	case fileExists(tomlPath):
		if err := LoadTOML(cfg, tomlPath); err != nil {
			return nil, fmt.Errorf("failed to load TOML config: %w", err)
		}
	case fileExists(jsonPath):
		if err := LoadJSON(cfg, jsonPath); err != nil {
			return nil, fmt.Errorf("failed to load JSON config: %w", err)
		}
	}

	return finish(cfg)
}

// LoadFromPath loads a specific file, choosing the decoder by extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = LoadTOML(cfg, path)
	case ".json":
		err = LoadJSON(cfg, path)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys missing from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	// Best effort; a read-only file system should not block loading.
	_ = ensureSecurePermissions(path)

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	_ = ensureSecurePermissions(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# contractchat configuration file\n")
	buf.WriteString("# Generated by contractchat - edit with care\n")
	buf.WriteString("#\n")
	buf.WriteString("# Documentation: " + configFileHeaderURL + "\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with owner-only permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.URL == "" {
		errs = append(errs, ValidationError{"backend.url", "must not be empty"})
	} else if u, err := url.Parse(c.Backend.URL); err != nil {
		errs = append(errs, ValidationError{"backend.url", fmt.Sprintf("invalid URL: %v", err)})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{"backend.url", "scheme must be http or https"})
	} else if u.Host == "" {
		errs = append(errs, ValidationError{"backend.url", "missing host"})
	}

	if c.Backend.TimeoutSecs < 1 || c.Backend.TimeoutSecs > maxTimeoutSecs {
		errs = append(errs, ValidationError{"backend.timeout_secs", fmt.Sprintf("must be between 1 and %d", maxTimeoutSecs)})
	}
	if c.Backend.RateLimit < 0 {
		errs = append(errs, ValidationError{"backend.rate_limit", "must not be negative"})
	}
	if c.Backend.RateLimit > 0 && c.Backend.RateBurst < 1 {
		errs = append(errs, ValidationError{"backend.rate_burst", "must be at least 1 when rate_limit is set"})
	}
	if c.Chat.TimeoutSecs < 1 || c.Chat.TimeoutSecs > maxTimeoutSecs {
		errs = append(errs, ValidationError{"chat.timeout_secs", fmt.Sprintf("must be between 1 and %d", maxTimeoutSecs)})
	}
	if !contains(ValidLogLevels, strings.ToLower(c.Log.Level)) && strings.ToLower(c.Log.Level) != "warning" {
		errs = append(errs, ValidationError{"log.level", fmt.Sprintf("must be one of %s", strings.Join(ValidLogLevels, ", "))})
	}
	if !contains(ValidThemes, c.UI.Theme) {
		errs = append(errs, ValidationError{"ui.theme", fmt.Sprintf("must be one of %s", strings.Join(ValidThemes, ", "))})
	}
	if !contains(ValidExportFormats, strings.ToLower(c.Export.Format)) {
		errs = append(errs, ValidationError{"export.format", fmt.Sprintf("must be one of %s", strings.Join(ValidExportFormats, ", "))})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero.
func (c *Config) SetDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.Backend.RateLimit > 0 && c.Backend.RateBurst == 0 {
		c.Backend.RateBurst = DefaultRateBurst
	}
	if c.Chat.TimeoutSecs == 0 {
		c.Chat.TimeoutSecs = DefaultChatTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.UI.Theme == "" {
		c.UI.Theme = DefaultTheme
	}
	if c.Export.Format == "" {
		c.Export.Format = DefaultExportFormat
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CONTRACTCHAT_* variables. Malformed numeric or
// boolean values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(envPrefix + "BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(envPrefix + "TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.TimeoutSecs = n
		}
	}
	if v := os.Getenv(envPrefix + "RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Backend.RateLimit = f
		}
	}
	if v := os.Getenv(envPrefix + "CHAT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Chat.TimeoutSecs = n
		}
	}
	if v := os.Getenv(envPrefix + "CONTINUE_ON_ERROR"); v != "" {
		if b, err := parseBool(v); err == nil {
			c.Upload.ContinueOnError = b
		}
	}
	if v := os.Getenv(envPrefix + "STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv(envPrefix + "THEME"); v != "" {
		c.UI.Theme = v
	}
	if os.Getenv("NO_COLOR") != "" {
		c.UI.RenderMarkdown = false
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by dot-notation key, e.g. "backend.url".
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by dot-notation key. String input is converted to the
// field's type. The result is not validated; call Validate afterwards.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value: %q", s)
}

// setFieldValue assigns value to field, converting from string when needed.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := parseBool(strVal)
			if err != nil {
				return err
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	if value == nil {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns every configuration key in dot notation.
func GetAllKeys() []string {
	return []string{
		"backend.url",
		"backend.timeout_secs",
		"backend.rate_limit",
		"backend.rate_burst",
		"chat.timeout_secs",
		"upload.continue_on_error",
		"auth.revoke_on_any_call",
		"storage.path",
		"log.level",
		"log.file",
		"ui.theme",
		"ui.render_markdown",
		"export.dir",
		"export.format",
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as JSON for debugging. Userinfo embedded in the
// backend URL is redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if u, err := url.Parse(safe.Backend.URL); err == nil && u.User != nil {
		u.User = url.User(redacted)
		safe.Backend.URL = u.String()
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
// A load failure falls back to defaults with a warning on stderr.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the global config so the next Global call
// loads again. Tests only.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
