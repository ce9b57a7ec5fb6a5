package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all backend configuration.
type Config struct {
	Server    ServerConfig
	Profile   ProfileConfig
	Vault     VaultConfig
	Adblock   AdblockConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds the local HTTP/WebSocket surface configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// ProfileConfig holds browser profile storage configuration.
type ProfileConfig struct {
	// Dir overrides the default profile directory when non-empty.
	Dir string `envconfig:"PROFILE_DIR" default:""`
}

// VaultConfig holds credential manager configuration.
type VaultConfig struct {
	// PromptTimeout is how long save/update prompts stay up before
	// auto-dismissing.
	PromptTimeout time.Duration `envconfig:"VAULT_PROMPT_TIMEOUT" default:"15s"`
	// ObfuscateChars is how many leading username characters stay visible
	// in the autofill dropdown before the secret is revealed.
	ObfuscateChars int `envconfig:"VAULT_OBFUSCATE_CHARS" default:"3"`
	// FetchIcons enables favicon lookups for the credential list.
	FetchIcons bool `envconfig:"VAULT_FETCH_ICONS" default:"true"`
}

// AdblockConfig holds blocking engine configuration.
type AdblockConfig struct {
	EnabledDefault bool `envconfig:"ADBLOCK_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig bounds page-channel message throughput per connection.
type RateLimitConfig struct {
	MessagesPerSecond int  `envconfig:"PAGE_MSG_RPS" default:"50"`
	Burst             int  `envconfig:"PAGE_MSG_BURST" default:"100"`
	Enabled           bool `envconfig:"PAGE_MSG_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8600",
			Host: "127.0.0.1",
		},
		Vault: VaultConfig{
			PromptTimeout:  15 * time.Second,
			ObfuscateChars: 3,
			FetchIcons:     true,
		},
		Adblock: AdblockConfig{
			EnabledDefault: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
