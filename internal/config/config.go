package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// Config represents the global ~/.sereno/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile" env:"DEFAULT_PROFILE,overwrite"`

	Server     ServerConfig     `toml:"server" env:",prefix=SERVER_"`
	Auth       AuthConfig       `toml:"auth" env:",prefix=AUTH_"`
	Connection ConnectionConfig `toml:"connection" env:",prefix=CONNECTION_"`
	Reconnect  ReconnectConfig  `toml:"reconnect" env:",prefix=RECONNECT_"`
	Chat       ChatConfig       `toml:"chat" env:",prefix=CHAT_"`
	Cleanup    CleanupConfig    `toml:"cleanup" env:",prefix=CLEANUP_"`
	Metrics    MetricsConfig    `toml:"metrics" env:",prefix=METRICS_"`
	Log        LogConfig        `toml:"log" env:",prefix=LOG_"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// URL is the backend base URL; http(s) is mapped to ws(s).
	URL    string `toml:"url" env:"URL,overwrite"`
	Origin string `toml:"origin" env:"ORIGIN,overwrite"`
}

// AuthConfig supplies the bearer token. Token wins over TokenFile.
type AuthConfig struct {
	Token     string `toml:"token" env:"TOKEN,overwrite"`
	TokenFile string `toml:"token_file" env:"TOKEN_FILE,overwrite"`
	// UserID overrides the id read from the token claims.
	UserID   string `toml:"user_id" env:"USER_ID,overwrite"`
	UserName string `toml:"user_name" env:"USER_NAME,overwrite"`
}

type ConnectionConfig struct {
	ConnectTimeout    time.Duration `toml:"connect_timeout" env:"CONNECT_TIMEOUT,overwrite"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL,overwrite"`
	HeartbeatGrace    time.Duration `toml:"heartbeat_grace" env:"HEARTBEAT_GRACE,overwrite"`
	WriteTimeout      time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT,overwrite"`
	ReadLimit         int64         `toml:"read_limit" env:"READ_LIMIT,overwrite"`
}

// ReconnectConfig selects the backoff policy. MaxAttempts 0 retries forever.
type ReconnectConfig struct {
	Strategy    string        `toml:"strategy" env:"STRATEGY,overwrite"`
	Delay       time.Duration `toml:"delay" env:"DELAY,overwrite"`
	MaxDelay    time.Duration `toml:"max_delay" env:"MAX_DELAY,overwrite"`
	Factor      float64       `toml:"factor" env:"FACTOR,overwrite"`
	Jitter      float64       `toml:"jitter" env:"JITTER,overwrite"`
	MaxAttempts int           `toml:"max_attempts" env:"MAX_ATTEMPTS,overwrite"`
}

type ChatConfig struct {
	AckTimeout   time.Duration `toml:"ack_timeout" env:"ACK_TIMEOUT,overwrite"`
	DedupeWindow time.Duration `toml:"dedupe_window" env:"DEDUPE_WINDOW,overwrite"`
}

// CleanupConfig drives pruning of the room directory.
type CleanupConfig struct {
	Schedule  string        `toml:"schedule" env:"SCHEDULE,overwrite"`
	Retention time.Duration `toml:"retention" env:"RETENTION,overwrite"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `toml:"addr" env:"ADDR,overwrite"`
}

type LogConfig struct {
	Level string `toml:"level" env:"LEVEL,overwrite"`
}

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{URL: "http://localhost:8000"},
		Connection: ConnectionConfig{
			ConnectTimeout:    5 * time.Second,
			HeartbeatInterval: 25 * time.Second,
			WriteTimeout:      5 * time.Second,
			ReadLimit:         1 << 20,
		},
		Reconnect: ReconnectConfig{
			Strategy: StrategyFixed,
			Delay:    3 * time.Second,
			MaxDelay: time.Minute,
			Factor:   2,
		},
		Chat: ChatConfig{
			AckTimeout:   10 * time.Second,
			DedupeWindow: time.Second,
		},
		Cleanup: CleanupConfig{
			Schedule:  "@every 1h",
			Retention: 30 * 24 * time.Hour,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns the
// error from a missing file unwrapped so callers can check os.ErrNotExist.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file is missing.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	}
	durations := map[string]time.Duration{
		"connection.connect_timeout":    c.Connection.ConnectTimeout,
		"connection.heartbeat_interval": c.Connection.HeartbeatInterval,
		"connection.heartbeat_grace":    c.Connection.HeartbeatGrace,
		"connection.write_timeout":      c.Connection.WriteTimeout,
		"reconnect.delay":               c.Reconnect.Delay,
		"reconnect.max_delay":           c.Reconnect.MaxDelay,
		"chat.ack_timeout":              c.Chat.AckTimeout,
		"chat.dedupe_window":            c.Chat.DedupeWindow,
		"cleanup.retention":             c.Cleanup.Retention,
	}
	for name, d := range durations {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	switch c.Reconnect.Strategy {
	case "", StrategyFixed, StrategyExponential:
	default:
		errs = append(errs, fmt.Errorf("reconnect.strategy %q: want %s or %s", c.Reconnect.Strategy, StrategyFixed, StrategyExponential))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect.max_attempts must not be negative"))
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, errors.New("reconnect.jitter must be within [0,1]"))
	}
	if c.Cleanup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("cleanup.schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}
