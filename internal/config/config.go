package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds chat client configuration values.
type Config struct {
	ServerURL       string        `mapstructure:"server_url" yaml:"server_url"`
	UserName        string        `mapstructure:"user_name" yaml:"user_name"`
	Channel         string        `mapstructure:"channel" yaml:"channel"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	HeartbeatDelay  time.Duration `mapstructure:"heartbeat_delay" yaml:"heartbeat_delay"`
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period" yaml:"heartbeat_period"`
	// MetricsAddr enables the Prometheus endpoint when set, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		ServerURL:       "ws://localhost:8080/ws",
		Channel:         "default",
		LogLevel:        "info",
		DialTimeout:     10 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		HeartbeatDelay:  time.Second,
		HeartbeatPeriod: 10 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.ServerURL != "" {
		c.ServerURL = other.ServerURL
	}
	if other.UserName != "" {
		c.UserName = other.UserName
	}
	if other.Channel != "" {
		c.Channel = other.Channel
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.HeartbeatDelay != 0 {
		c.HeartbeatDelay = other.HeartbeatDelay
	}
	if other.HeartbeatPeriod != 0 {
		c.HeartbeatPeriod = other.HeartbeatPeriod
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
}

// Validate reports the first setting the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server_url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("server_url: missing host")
	}
	if c.UserName == "" {
		return errors.New("user_name is required")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"dial_timeout", c.DialTimeout},
		{"write_timeout", c.WriteTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"heartbeat_delay", c.HeartbeatDelay},
		{"heartbeat_period", c.HeartbeatPeriod},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}
