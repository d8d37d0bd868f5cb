package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
backend:
  api_key: "sk-test"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Backend.TimeoutSec != 90 {
		t.Errorf("timeout_sec = %d, want default 90", cfg.Backend.TimeoutSec)
	}
	if cfg.Models.MaxToolRounds != 6 {
		t.Errorf("max_tool_rounds = %d, want default 6", cfg.Models.MaxToolRounds)
	}
	if !cfg.Reminders.Enabled || cfg.Reminders.PollIntervalSec != 30 {
		t.Errorf("reminders = %+v", cfg.Reminders)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MARVIN_TEST_TOKEN", "999:secret")
	path := writeConfig(t, `
telegram:
  token: "${MARVIN_TEST_TOKEN}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "999:secret" {
		t.Errorf("token = %q, want expanded value", cfg.Telegram.Token)
	}
}

func TestLoadOverridesNested(t *testing.T) {
	path := writeConfig(t, `
models:
  premium:
    name: other-model
    daily_token_limit: 5000
  auto_switch: false
session:
  timeout_minutes: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Models.Premium.Name != "other-model" || cfg.Models.Premium.DailyTokenLimit != 5000 {
		t.Errorf("premium tier = %+v", cfg.Models.Premium)
	}
	if cfg.Models.AutoSwitch {
		t.Error("auto_switch should be overridden to false")
	}
	if cfg.Session.TimeoutMinutes != 5 {
		t.Errorf("timeout_minutes = %d", cfg.Session.TimeoutMinutes)
	}
	// Untouched sections keep their defaults.
	if cfg.Backend.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("base_url = %q", cfg.Backend.BaseURL)
	}
}

func TestFindConfigExplicitMustExist(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit path")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.Backend.RetryDelay().Seconds() != 5 {
		t.Errorf("retry delay = %v", cfg.Backend.RetryDelay())
	}
	if cfg.Backend.SlowRetryDelay() <= cfg.Backend.RetryDelay() {
		t.Error("slow retry delay should exceed the normal delay")
	}
	if cfg.Reminders.PollInterval().Seconds() != 30 {
		t.Errorf("poll interval = %v", cfg.Reminders.PollInterval())
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
