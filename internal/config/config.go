// Package config handles Marvin configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/marvin/config.yaml, /etc/marvin/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "marvin", "config.yaml"))
	}

	paths = append(paths, "/etc/marvin/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Marvin configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Backend   BackendConfig   `yaml:"backend"`
	Models    ModelsConfig    `yaml:"models"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Reminders RemindersConfig `yaml:"reminders"`
	Listen    ListenConfig    `yaml:"listen"`
	Tools     ToolsConfig     `yaml:"tools"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// TelegramConfig defines Bot API connection settings.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// APIURL overrides the Bot API endpoint, mainly for tests and
	// self-hosted bot API servers. Empty means api.telegram.org.
	APIURL string `yaml:"api_url"`
	// PollTimeoutSec is the getUpdates long-poll timeout (default 30).
	PollTimeoutSec int `yaml:"poll_timeout_sec"`
}

// BackendConfig defines the model backend (OpenAI-compatible) settings.
type BackendConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	// TimeoutSec bounds a single chat completion call (default 90).
	TimeoutSec int `yaml:"timeout_sec"`
	// MaxRetries is how many times a timed-out call is retried before
	// the request degrades to a canned apology (default 2).
	MaxRetries int `yaml:"max_retries"`
	// RetryDelaySec is the pause between retries (default 5).
	RetryDelaySec int `yaml:"retry_delay_sec"`
	// SlowRetryDelaySec replaces RetryDelaySec when the previous round
	// ran a slow collaborator tool such as translation (default 15).
	SlowRetryDelaySec int `yaml:"slow_retry_delay_sec"`
}

// ModelTier names one model and its daily token budget.
type ModelTier struct {
	Name            string `yaml:"name"`
	DailyTokenLimit int64  `yaml:"daily_token_limit"`
}

// ModelsConfig defines tier selection settings.
type ModelsConfig struct {
	Premium ModelTier `yaml:"premium"`
	Mini    ModelTier `yaml:"mini"`
	// AutoSwitch enables usage-based tier selection. When false the
	// premium tier is always used and limits are ignored.
	AutoSwitch bool `yaml:"auto_switch"`
	// LimitAction is what happens once both tiers are over budget:
	// "deny", "warn", or "proceed" (default proceed).
	LimitAction string `yaml:"limit_action"`
	// MaxToolRounds bounds tool-call round trips per message (default 6).
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// SessionConfig defines conversation history policy.
type SessionConfig struct {
	// TimeoutMinutes is the idle gap after which history is trimmed.
	// 0 disables idle trimming.
	TimeoutMinutes int `yaml:"timeout_minutes"`
	// MaxRetainedMessages is how much history survives an idle trim.
	// 0 clears the history entirely.
	MaxRetainedMessages int `yaml:"max_retained_messages"`
	// MaxHistoryTokens is the token budget for history sent to the
	// model. 0 disables budget trimming.
	MaxHistoryTokens int `yaml:"max_history_tokens"`
}

// RateLimitConfig defines global inbound admission control.
type RateLimitConfig struct {
	// MaxRequestsPerMinute bounds messages processed per rolling
	// 60-second window across all chats. 0 disables the limiter.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
}

// RemindersConfig defines the reminder subsystem.
type RemindersConfig struct {
	Enabled bool `yaml:"enabled"`
	// PollIntervalSec is how often the poller looks for due reminders
	// (default 30).
	PollIntervalSec int `yaml:"poll_interval_sec"`
	// MaxPerUser caps pending reminders per user. 0 means no cap.
	MaxPerUser int `yaml:"max_per_user"`
}

// ListenConfig defines the ops API server settings.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// ToolsConfig defines tool collaborator endpoints.
type ToolsConfig struct {
	// TranslateURL is the translation collaborator endpoint. Empty
	// disables the translate tool.
	TranslateURL string `yaml:"translate_url"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file body are expanded before parsing, so secrets can live in the
// environment rather than on disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with workable defaults for every
// knob that has one. Secrets (tokens, keys) have no default.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeoutSec: 30},
		Backend: BackendConfig{
			BaseURL:           "https://api.openai.com/v1",
			Temperature:       0.7,
			TimeoutSec:        90,
			MaxRetries:        2,
			RetryDelaySec:     5,
			SlowRetryDelaySec: 15,
		},
		Models: ModelsConfig{
			Premium:       ModelTier{Name: "gpt-4o", DailyTokenLimit: 250_000},
			Mini:          ModelTier{Name: "gpt-4o-mini", DailyTokenLimit: 1_000_000},
			AutoSwitch:    true,
			LimitAction:   "proceed",
			MaxToolRounds: 6,
		},
		Session: SessionConfig{
			TimeoutMinutes:      60,
			MaxRetainedMessages: 10,
			MaxHistoryTokens:    6000,
		},
		RateLimit: RateLimitConfig{MaxRequestsPerMinute: 30},
		Reminders: RemindersConfig{
			Enabled:         true,
			PollIntervalSec: 30,
			MaxPerUser:      25,
		},
		Listen:   ListenConfig{Port: 8080},
		DataDir:  ".",
		LogLevel: "info",
	}
}

// BackendTimeout returns the configured per-call timeout as a Duration.
func (c *BackendConfig) BackendTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RetryDelay returns the normal inter-retry pause.
func (c *BackendConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// SlowRetryDelay returns the extended inter-retry pause used while a
// slow collaborator call may still be in flight.
func (c *BackendConfig) SlowRetryDelay() time.Duration {
	return time.Duration(c.SlowRetryDelaySec) * time.Second
}

// PollInterval returns the reminder poll cadence as a Duration.
func (c *RemindersConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}
