// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for strand.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.strand/config.toml
//   - ~/.strand/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/strand/internal/tools"
	"github.com/jeranaias/strand/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete strand configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`
	// Model is the Responses API model identifier.
	Model string `toml:"model" json:"model"`
	// Greeting is the assistant message a fresh conversation opens with.
	Greeting string `toml:"greeting" json:"greeting"`
	// Instructions is the developer prompt sent with every turn.
	Instructions string `toml:"instructions" json:"instructions"`

	// API configuration
	API APIConfig `toml:"api" json:"api"`

	// Proxy server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Tool configuration
	Tools ToolsConfig `toml:"tools" json:"tools"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// APIConfig contains upstream API configuration.
type APIConfig struct {
	// Key is the OpenAI API key. Prefer the STRAND_API_KEY environment
	// variable over storing it here.
	Key string `toml:"key" json:"key"`
	// BaseURL is the upstream API base. Override for compatible gateways.
	BaseURL string `toml:"base_url" json:"base_url"`
}

// ServerConfig contains the local proxy configuration.
type ServerConfig struct {
	// Addr is the listen address of the local proxy.
	Addr string `toml:"addr" json:"addr"`
	// RateLimitPerSec caps request throughput per client. 0 disables.
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// CacheDir is the directory for the container file cache database
	// (empty = ~/.strand/cache).
	CacheDir string `toml:"cache_dir" json:"cache_dir"`
}

// WebSearchConfig configures the hosted web search tool.
type WebSearchConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Country string `toml:"country" json:"country"`
	City    string `toml:"city" json:"city"`
	Region  string `toml:"region" json:"region"`
}

// FileSearchConfig configures the hosted file search tool.
type FileSearchConfig struct {
	Enabled       bool   `toml:"enabled" json:"enabled"`
	VectorStoreID string `toml:"vector_store_id" json:"vector_store_id"`
}

// McpServerConfig describes one remote MCP server entry.
type McpServerConfig struct {
	Label        string   `toml:"label" json:"label"`
	URL          string   `toml:"url" json:"url"`
	AllowedTools []string `toml:"allowed_tools" json:"allowed_tools"`
	SkipApproval bool     `toml:"skip_approval" json:"skip_approval"`
}

// ToolsConfig groups per-tool configuration.
type ToolsConfig struct {
	WebSearch       WebSearchConfig   `toml:"web_search" json:"web_search"`
	FileSearch      FileSearchConfig  `toml:"file_search" json:"file_search"`
	CodeInterpreter bool              `toml:"code_interpreter" json:"code_interpreter"`
	Functions       bool              `toml:"functions" json:"functions"`
	McpServers      []McpServerConfig `toml:"mcp_servers" json:"mcp_servers"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
	// ShowToolCalls renders tool call traces in the transcript
	ShowToolCalls bool `toml:"show_tool_calls" json:"show_tool_calls"`
	// Markdown enables rendered markdown for assistant messages
	Markdown bool `toml:"markdown" json:"markdown"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version:  "1.0.0",
		Model:    "gpt-4.1",
		Greeting: "How can I help you?",
		Instructions: "You are a helpful assistant helping users with their queries. " +
			"Answer concisely and use the available tools when they help.",

		API: APIConfig{
			BaseURL: "https://api.openai.com/v1",
		},

		Server: ServerConfig{
			Addr:            "127.0.0.1:8843",
			RateLimitPerSec: 10,
		},

		Tools: ToolsConfig{
			WebSearch:       WebSearchConfig{Enabled: false},
			FileSearch:      FileSearchConfig{Enabled: false},
			CodeInterpreter: false,
			Functions:       true,
		},

		UI: UIConfig{
			Theme:         "dark",
			CompactMode:   false,
			ShowToolCalls: true,
			Markdown:      true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the strand configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".strand"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
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

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := loadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := loadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// loadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func loadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment always wins over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("STRAND_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.API.Key == "" {
		c.API.Key = v
	}
	if v := os.Getenv("STRAND_API_BASE"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("STRAND_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("STRAND_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("STRAND_VECTOR_STORE_ID"); v != "" {
		c.Tools.FileSearch.VectorStoreID = v
	}
}

// SetDefaults fills in any missing values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Model == "" {
		c.Model = defaults.Model
	}
	if c.Greeting == "" {
		c.Greeting = defaults.Greeting
	}
	if c.Instructions == "" {
		c.Instructions = defaults.Instructions
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		if _, err := url.Parse(c.API.BaseURL); err != nil {
			return ValidationError{Field: "api.base_url", Message: err.Error()}
		}
	}
	if c.Server.RateLimitPerSec < 0 {
		return ValidationError{Field: "server.rate_limit_per_sec", Message: "must not be negative"}
	}
	switch c.UI.Theme {
	case "", "dark", "light", "auto":
	default:
		return ValidationError{Field: "ui.theme", Message: fmt.Sprintf("unknown theme %q", c.UI.Theme)}
	}
	if c.Tools.FileSearch.Enabled && c.Tools.FileSearch.VectorStoreID == "" {
		return ValidationError{Field: "tools.file_search.vector_store_id", Message: "required when file search is enabled"}
	}
	for i, srv := range c.Tools.McpServers {
		if srv.Label == "" {
			return ValidationError{Field: fmt.Sprintf("tools.mcp_servers[%d].label", i), Message: "label is required"}
		}
		if _, err := url.Parse(srv.URL); srv.URL == "" || err != nil {
			return ValidationError{Field: fmt.Sprintf("tools.mcp_servers[%d].url", i), Message: "a valid url is required"}
		}
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# strand configuration file")
	fmt.Fprintln(file, "# Generated by strand - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
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
// DERIVED VIEWS
// =============================================================================

// ToolOptions projects the tool configuration into the descriptor options
// used when building a turn request.
func (c *Config) ToolOptions() tools.Options {
	opts := tools.Options{
		WebSearchEnabled: c.Tools.WebSearch.Enabled,
		WebSearchLocation: tools.UserLocation{
			Country: c.Tools.WebSearch.Country,
			City:    c.Tools.WebSearch.City,
			Region:  c.Tools.WebSearch.Region,
		},
		FileSearchEnabled:      c.Tools.FileSearch.Enabled,
		VectorStoreID:          c.Tools.FileSearch.VectorStoreID,
		CodeInterpreterEnabled: c.Tools.CodeInterpreter,
		FunctionsEnabled:       c.Tools.Functions,
	}
	for _, srv := range c.Tools.McpServers {
		opts.McpServers = append(opts.McpServers, tools.McpServer{
			Label:        srv.Label,
			URL:          srv.URL,
			AllowedTools: srv.AllowedTools,
			SkipApproval: srv.SkipApproval,
		})
	}
	return opts
}

// CacheDBPath resolves the container file cache database location.
func (c *Config) CacheDBPath() (string, error) {
	dir := c.Server.CacheDir
	if dir == "" {
		base, err := ConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "cache")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return filepath.Join(dir, "files.db"), nil
}
