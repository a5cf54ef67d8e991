// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials, use ValidateBotReady.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// Account
	KickEmail    string
	KickPassword string

	// Channel to monitor
	KickStreamer string

	// Realtime socket
	KickWSURL        string
	IdlePingInterval time.Duration
	UserFeed         bool

	// Operational HTTP surface; main falls back to :8080 when unset.
	DebugAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads environment variables and applies defaults. It doesn't fail if
// account credentials are missing; use ValidateBotReady() when you require a
// login. An empty KICK_WS_URL keeps the socket package's built-in endpoint.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.KickEmail = os.Getenv("KICK_EMAIL")
	cfg.KickPassword = os.Getenv("KICK_PASSWORD")
	cfg.KickStreamer = os.Getenv("KICK_STREAMER")

	cfg.KickWSURL = os.Getenv("KICK_WS_URL")
	if v := os.Getenv("IDLE_PING_SECONDS"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid IDLE_PING_SECONDS (positive integer): %q", v)
		}
		cfg.IdlePingInterval = time.Duration(n) * time.Second
	}
	cfg.UserFeed = os.Getenv("KICK_USER_FEED") == "1"

	cfg.DebugAddr = os.Getenv("DEBUG_ADDR")

	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogFormat = os.Getenv("LOG_FORMAT")
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	return cfg, nil
}

// ValidateBotReady checks the fields required to log in and join a chatroom.
func (c *Config) ValidateBotReady() error {
	if c.KickEmail == "" || c.KickPassword == "" || c.KickStreamer == "" {
		return fmt.Errorf("missing kick env: require KICK_EMAIL, KICK_PASSWORD, KICK_STREAMER")
	}
	return nil
}
