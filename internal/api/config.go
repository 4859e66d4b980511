// Package api provides the HTTP server: the health endpoint, notification
// intake and stream, range-aware clip serving, the annotation UI and its JSON API.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/DeGirum/face-recognition/internal/conf"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 0 // clip downloads and the event stream are long-lived
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "1M"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// BodyLimit caps request bodies (e.g. "1M")
	BodyLimit string
	// NotifyRateLimit is the per-client request rate on /notify; 0 disables limiting
	NotifyRateLimit float64

	// Live stream relay the /stream page embeds
	RelayPort      int
	LiveStreamPath string

	MetricsEnabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            8080,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		RelayPort:       conf.DefaultRelayPort,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	cfg.Host = settings.WebServer.Host
	cfg.Port = settings.WebServer.Port
	cfg.NotifyRateLimit = settings.WebServer.NotifyRateLimit
	cfg.LiveStreamPath = settings.LiveStream.Path
	if settings.LiveStream.RelayPort > 0 {
		cfg.RelayPort = settings.LiveStream.RelayPort
	}
	cfg.MetricsEnabled = settings.Metrics.Enabled
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RelayPort <= 0 || c.RelayPort > 65535 {
		return fmt.Errorf("invalid relay port %d", c.RelayPort)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.NotifyRateLimit < 0 {
		return fmt.Errorf("notify rate limit must not be negative")
	}
	return nil
}

// Address returns the address string for the server to listen on.
func (c *Config) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
