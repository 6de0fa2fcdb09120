package config

import (
	"fmt"
	"net"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Terminal  TerminalConfig
	Profiles  ProfilesConfig
}

// ServerConfig holds HTTP server configuration.
// The control API drives local processes, so it binds to loopback by default.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"7681"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
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

// TerminalConfig holds session defaults and event bus bounds.
type TerminalConfig struct {
	DefaultCols      int `envconfig:"TERMINAL_DEFAULT_COLS" default:"120"`
	DefaultRows      int `envconfig:"TERMINAL_DEFAULT_ROWS" default:"30"`
	RetainBytes      int `envconfig:"TERMINAL_RETAIN_BYTES" default:"1048576"`
	SubscriberBuffer int `envconfig:"TERMINAL_SUBSCRIBER_BUFFER" default:"256"`
	ReadBufferSize   int `envconfig:"TERMINAL_READ_BUFFER" default:"32768"`
	InputQueueBytes  int `envconfig:"TERMINAL_INPUT_QUEUE_BYTES" default:"1048576"`
}

// ProfilesConfig points at the optional SSH host profile file.
type ProfilesConfig struct {
	Path string `envconfig:"PROFILES_PATH"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	t := c.Terminal
	switch {
	case t.DefaultCols < 1 || t.DefaultCols > 65535:
		return fmt.Errorf("invalid config: TERMINAL_DEFAULT_COLS=%d out of range", t.DefaultCols)
	case t.DefaultRows < 1 || t.DefaultRows > 65535:
		return fmt.Errorf("invalid config: TERMINAL_DEFAULT_ROWS=%d out of range", t.DefaultRows)
	case t.RetainBytes < 1:
		return fmt.Errorf("invalid config: TERMINAL_RETAIN_BYTES must be positive")
	case t.SubscriberBuffer < 1:
		return fmt.Errorf("invalid config: TERMINAL_SUBSCRIBER_BUFFER must be positive")
	case t.ReadBufferSize < 1:
		return fmt.Errorf("invalid config: TERMINAL_READ_BUFFER must be positive")
	case t.InputQueueBytes < 1:
		return fmt.Errorf("invalid config: TERMINAL_INPUT_QUEUE_BYTES must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "7681",
			Host: "127.0.0.1",
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
		Terminal: TerminalConfig{
			DefaultCols:      120,
			DefaultRows:      30,
			RetainBytes:      1 << 20,
			SubscriberBuffer: 256,
			ReadBufferSize:   32 * 1024,
			InputQueueBytes:  1 << 20,
		},
	}
}
