// Package config loads client configuration from env and an optional .env
// file using Viper.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the http(s) base URL of the MediaLab REST API.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// RealtimeURL is the ws(s) base URL of the realtime endpoint.
	RealtimeURL string `mapstructure:"REALTIME_URL"`

	// HTTPTimeout bounds every REST request (e.g. "30s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`
	// DialTimeout bounds the WebSocket handshake (e.g. "15s").
	DialTimeout string `mapstructure:"DIAL_TIMEOUT"`
	// HeartbeatInterval is the ping cadence on an open connection.
	HeartbeatInterval string `mapstructure:"HEARTBEAT_INTERVAL"`
	// MaxReconnectAttempts caps the reconnect ladder before giving up.
	MaxReconnectAttempts int `mapstructure:"MAX_RECONNECT_ATTEMPTS"`

	// InactivityThreshold is how long a session may idle before locking.
	InactivityThreshold string `mapstructure:"INACTIVITY_THRESHOLD"`
	// InactivityPoll is how often the idle clock is checked.
	InactivityPoll string `mapstructure:"INACTIVITY_POLL"`
	// SuppressCooldown is the post-logout window during which background
	// auth checks are skipped.
	SuppressCooldown string `mapstructure:"SUPPRESS_COOLDOWN"`

	// HintsDBPath is the SQLite file for persisted hints; empty selects the
	// in-memory store.
	HintsDBPath string `mapstructure:"HINTS_DB_PATH"`
	// PublicRoutes is a comma-separated list of routes exempt from idle
	// locking (default "/login,/password-reset").
	PublicRoutes string `mapstructure:"PUBLIC_ROUTES"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Missing .env is ignored; env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8000")
	v.SetDefault("REALTIME_URL", "ws://localhost:8000")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("DIAL_TIMEOUT", "15s")
	v.SetDefault("HEARTBEAT_INTERVAL", "30s")
	v.SetDefault("MAX_RECONNECT_ATTEMPTS", 10)
	v.SetDefault("INACTIVITY_THRESHOLD", "15m")
	v.SetDefault("INACTIVITY_POLL", "1m")
	v.SetDefault("SUPPRESS_COOLDOWN", "5s")
	v.SetDefault("HINTS_DB_PATH", "")
	v.SetDefault("PUBLIC_ROUTES", "/login,/password-reset")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "[Load] unmarshal config")
	}

	if err := requireScheme(cfg.APIBaseURL, "API_BASE_URL", "http", "https"); err != nil {
		return nil, err
	}
	if err := requireScheme(cfg.RealtimeURL, "REALTIME_URL", "ws", "wss"); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectAttempts < 1 {
		return nil, errors.New("config: MAX_RECONNECT_ATTEMPTS must be at least 1")
	}

	return &cfg, nil
}

func requireScheme(raw, name string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "config: %s is not a valid URL", name)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return errors.Errorf("config: %s scheme must be one of %s, got %q",
		name, strings.Join(schemes, "/"), u.Scheme)
}

func duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// HTTPTimeoutDuration parses HTTPTimeout; 30s if unset or invalid.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return duration(c.HTTPTimeout, 30*time.Second)
}

// DialTimeoutDuration parses DialTimeout; 15s if unset or invalid.
func (c *Config) DialTimeoutDuration() time.Duration {
	return duration(c.DialTimeout, 15*time.Second)
}

// HeartbeatIntervalDuration parses HeartbeatInterval; 30s if unset or invalid.
func (c *Config) HeartbeatIntervalDuration() time.Duration {
	return duration(c.HeartbeatInterval, 30*time.Second)
}

// InactivityThresholdDuration parses InactivityThreshold; 15m if unset or invalid.
func (c *Config) InactivityThresholdDuration() time.Duration {
	return duration(c.InactivityThreshold, 15*time.Minute)
}

// InactivityPollDuration parses InactivityPoll; 1m if unset or invalid.
func (c *Config) InactivityPollDuration() time.Duration {
	return duration(c.InactivityPoll, time.Minute)
}

// SuppressCooldownDuration parses SuppressCooldown; 5s if unset or invalid.
func (c *Config) SuppressCooldownDuration() time.Duration {
	return duration(c.SuppressCooldown, 5*time.Second)
}

// PublicRoutesList splits the comma-separated PublicRoutes value.
func (c *Config) PublicRoutesList() []string {
	if c == nil || c.PublicRoutes == "" {
		return nil
	}
	parts := strings.Split(c.PublicRoutes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
