package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// FileEnv names the optional TOML or YAML overlay file.
const FileEnv = "LAUNCHER_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Plugins   PluginConfig
	Store     StoreConfig
	Session   SessionConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// PluginConfig holds plugin lifecycle tunables.
type PluginConfig struct {
	Root              string        `envconfig:"PLUGIN_ROOT" default:""`
	SearchBarHeight   int           `envconfig:"SEARCH_BAR_HEIGHT" default:"59"`
	DefaultHeight     int           `envconfig:"PLUGIN_DEFAULT_HEIGHT" default:"541"`
	ModeTimeout       time.Duration `envconfig:"PLUGIN_MODE_TIMEOUT" default:"1s"`
	MethodTimeout     time.Duration `envconfig:"PLUGIN_METHOD_TIMEOUT" default:"30s"`
	KillGrace         time.Duration `envconfig:"PLUGIN_KILL_GRACE" default:"200ms"`
	DetachedWidth     int           `envconfig:"DETACHED_WIDTH" default:"800"`
	TitlebarHeight    int           `envconfig:"TITLEBAR_HEIGHT" default:"40"`
	MinDetachedWidth  int           `envconfig:"DETACHED_MIN_WIDTH" default:"400"`
	MinDetachedHeight int           `envconfig:"DETACHED_MIN_HEIGHT" default:"300"`
	ScriptTimeout     time.Duration `envconfig:"PLUGIN_SCRIPT_TIMEOUT" default:"5s"`
	InternalNames     []string      `envconfig:"INTERNAL_PLUGINS" default:"system,setting"`
}

// StoreConfig holds persistent store configuration.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"sqlite"` // "sqlite" or "memory"
	Path   string `envconfig:"STORE_PATH" default:""`
}

// SessionConfig holds per-plugin network partition configuration.
type SessionConfig struct {
	Proxy           string        `envconfig:"PLUGIN_PROXY" default:""`
	RequestTimeout  time.Duration `envconfig:"PLUGIN_HTTP_TIMEOUT" default:"15s"`
	Retries         int           `envconfig:"PLUGIN_HTTP_RETRIES" default:"2"`
	BreakerFailures uint32        `envconfig:"PLUGIN_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"PLUGIN_BREAKER_TIMEOUT" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load reads environment variables, then applies the config file named by
// LAUNCHER_CONFIG on top. File values win over environment values.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if file := os.Getenv(FileEnv); file != "" {
		if err := cfg.ApplyFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
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
			Port: "8000",
			Host: "127.0.0.1",
		},
		Plugins: PluginConfig{
			SearchBarHeight:   59,
			DefaultHeight:     541,
			ModeTimeout:       time.Second,
			MethodTimeout:     30 * time.Second,
			KillGrace:         200 * time.Millisecond,
			DetachedWidth:     800,
			TitlebarHeight:    40,
			MinDetachedWidth:  400,
			MinDetachedHeight: 300,
			ScriptTimeout:     5 * time.Second,
			InternalNames:     []string{"system", "setting"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Session: SessionConfig{
			RequestTimeout:  15 * time.Second,
			Retries:         2,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate rejects values the lifecycle core cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Plugins.SearchBarHeight < 0:
		return fmt.Errorf("invalid config: search bar height must not be negative")
	case c.Plugins.DefaultHeight <= 0:
		return fmt.Errorf("invalid config: default plugin height must be positive")
	case c.Plugins.ModeTimeout <= 0 || c.Plugins.MethodTimeout <= 0:
		return fmt.Errorf("invalid config: rpc timeouts must be positive")
	case c.Store.Driver != "sqlite" && c.Store.Driver != "memory":
		return fmt.Errorf("invalid config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}
