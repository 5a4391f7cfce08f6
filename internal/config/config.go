// Package config provides dispatcher configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds dispatcher-core configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"dispatcher-core"`

	// CatalogFile points at the Protocol Registry document; empty defers to
	// catalog.Load's own DISPATCHER_CATALOG_FILE/default fallback.
	CatalogFile string `envconfig:"CATALOG_FILE"`

	// PlatformsRaw is the loaded-platform allow-list, comma-separated.
	// "dispatcher" is always implicitly allowed and need not be listed.
	PlatformsRaw string `envconfig:"DISPATCHER_PLATFORMS"`

	// Liveness Subsystem scan parameters (spec.md §4.2).
	ListenerIntervalTime  time.Duration `envconfig:"DISPATCHER_LISTENER_INTERVAL_TIME" default:"2s"`
	ListenerIntervalCount int           `envconfig:"DISPATCHER_LISTENER_INTERVAL_COUNT" default:"5"`

	// InstanceID namespaces this dispatcher's queue-channel subjects.
	InstanceID string `envconfig:"DISPATCHER_INSTANCE_ID" default:"default"`

	// Database is optional: when set, session registration state is
	// persisted in Postgres instead of in-process memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// HTTP health endpoint.
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Platforms parses PlatformsRaw into the allow-list catalog.IsLoaded expects.
func (c *Config) Platforms() []string {
	if c.PlatformsRaw == "" {
		return nil
	}
	parts := strings.Split(c.PlatformsRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateForServe checks required config when running the dispatcher server.
func (c *Config) ValidateForServe() error {
	if c.ListenerIntervalTime <= 0 {
		return fmt.Errorf("%s - DISPATCHER_LISTENER_INTERVAL_TIME must be positive", logPrefix)
	}
	if c.ListenerIntervalCount <= 0 {
		return fmt.Errorf("%s - DISPATCHER_LISTENER_INTERVAL_COUNT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands.
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
