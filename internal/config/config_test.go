package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Server.URL = "https://chat.example.com"
	cfg.Reconnect.MaxAttempts = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Server.URL != "https://chat.example.com" {
		t.Errorf("Server.URL = %q", loaded.Server.URL)
	}
	if loaded.Reconnect.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", loaded.Reconnect.MaxAttempts)
	}
	if loaded.Connection.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %s", loaded.Connection.ConnectTimeout)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
url = "http://10.0.0.2:8000"

[reconnect]
strategy = "exponential"
delay = "500ms"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Reconnect.Strategy != StrategyExponential || cfg.Reconnect.Delay != 500*time.Millisecond {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	if cfg.Chat.AckTimeout != 10*time.Second {
		t.Errorf("AckTimeout = %s, want default", cfg.Chat.AckTimeout)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Reconnect.Delay != 3*time.Second {
		t.Errorf("Delay = %s, want default", cfg.Reconnect.Delay)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Auth.Token = "from-file"

	env := envconfig.MapLookuper(map[string]string{
		"SERENO_AUTH_TOKEN":             "from-env",
		"SERENO_SERVER_URL":             "https://override",
		"SERENO_RECONNECT_MAX_ATTEMPTS": "7",
		"SERENO_CHAT_ACK_TIMEOUT":       "2s",
		"SERENO_DEFAULT_PROFILE":        "ops",
	})
	if err := ApplyEnv(context.Background(), cfg, env); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Auth.Token != "from-env" {
		t.Errorf("Token = %q", cfg.Auth.Token)
	}
	if cfg.Server.URL != "https://override" {
		t.Errorf("URL = %q", cfg.Server.URL)
	}
	if cfg.Reconnect.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Chat.AckTimeout != 2*time.Second {
		t.Errorf("AckTimeout = %s", cfg.Chat.AckTimeout)
	}
	if cfg.DefaultProfile != "ops" {
		t.Errorf("DefaultProfile = %q", cfg.DefaultProfile)
	}
	// Untouched values survive.
	if cfg.Reconnect.Delay != 3*time.Second {
		t.Errorf("Delay = %s", cfg.Reconnect.Delay)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SERENO_TEST_DOTENV=hello\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("SERENO_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("SERENO_TEST_DOTENV"); got != "hello" {
		t.Errorf("env = %q, want hello", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default is valid", func(*Config) {}, ""},
		{"missing url", func(c *Config) { c.Server.URL = "" }, "server.url"},
		{"negative timeout", func(c *Config) { c.Connection.ConnectTimeout = -time.Second }, "connect_timeout"},
		{"bad strategy", func(c *Config) { c.Reconnect.Strategy = "random" }, "strategy"},
		{"negative attempts", func(c *Config) { c.Reconnect.MaxAttempts = -1 }, "max_attempts"},
		{"jitter out of range", func(c *Config) { c.Reconnect.Jitter = 1.5 }, "jitter"},
		{"bad schedule", func(c *Config) { c.Cleanup.Schedule = "every now and then" }, "cleanup.schedule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
