package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// EnvPrefix prefixes every environment override, e.g. SERENO_AUTH_TOKEN.
const EnvPrefix = "SERENO_"

// ApplyEnv overwrites cfg fields with any SERENO_* variables found by l.
// A nil l reads the process environment.
func ApplyEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, cfg, envconfig.PrefixLookuper(EnvPrefix, l)); err != nil {
		return fmt.Errorf("parsing env vars: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Resolve loads the config file, applies the environment and validates.
func Resolve(ctx context.Context, path string) (*Config, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := ApplyEnv(ctx, cfg, nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
