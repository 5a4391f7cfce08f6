package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	envVars := []string{
		"COMMS_URL", "SERVICE_NAME", "CATALOG_FILE", "DISPATCHER_PLATFORMS",
		"DISPATCHER_LISTENER_INTERVAL_TIME", "DISPATCHER_LISTENER_INTERVAL_COUNT",
		"DISPATCHER_INSTANCE_ID", "DATABASE_URL", "HTTP_PORT",
		"HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "dispatcher-core" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "dispatcher-core")
	}
	if cfg.CatalogFile != "" {
		t.Errorf("config:config_test - CatalogFile = %q, want empty", cfg.CatalogFile)
	}
	if cfg.ListenerIntervalTime != 2*time.Second {
		t.Errorf("config:config_test - ListenerIntervalTime = %v, want 2s", cfg.ListenerIntervalTime)
	}
	if cfg.ListenerIntervalCount != 5 {
		t.Errorf("config:config_test - ListenerIntervalCount = %d, want 5", cfg.ListenerIntervalCount)
	}
	if cfg.InstanceID != "default" {
		t.Errorf("config:config_test - InstanceID = %q, want %q", cfg.InstanceID, "default")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if got := cfg.Platforms(); got != nil {
		t.Errorf("config:config_test - Platforms() = %v, want nil", got)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	overrides := map[string]string{
		"COMMS_URL":                          "nats://custom:4222",
		"SERVICE_NAME":                       "test-dispatcher",
		"CATALOG_FILE":                       "/tmp/catalog.json",
		"DISPATCHER_PLATFORMS":               "irc, xmpp,,slack",
		"DISPATCHER_LISTENER_INTERVAL_TIME":  "500ms",
		"DISPATCHER_LISTENER_INTERVAL_COUNT": "3",
		"DISPATCHER_INSTANCE_ID":             "node-1",
		"DATABASE_URL":                       "postgres://test@localhost/test",
		"HTTP_PORT":                          "9090",
		"HEALTH_CHECK_TIMEOUT":               "10s",
		"LOG_LEVEL":                          "debug",
	}

	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer func() {
		for key := range overrides {
			os.Unsetenv(key)
		}
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://custom:4222")
	}
	if cfg.COMMSName != "test-dispatcher" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "test-dispatcher")
	}
	if cfg.CatalogFile != "/tmp/catalog.json" {
		t.Errorf("config:config_test - CatalogFile = %q, want %q", cfg.CatalogFile, "/tmp/catalog.json")
	}
	if cfg.ListenerIntervalTime != 500*time.Millisecond {
		t.Errorf("config:config_test - ListenerIntervalTime = %v, want 500ms", cfg.ListenerIntervalTime)
	}
	if cfg.ListenerIntervalCount != 3 {
		t.Errorf("config:config_test - ListenerIntervalCount = %d, want 3", cfg.ListenerIntervalCount)
	}
	if cfg.InstanceID != "node-1" {
		t.Errorf("config:config_test - InstanceID = %q, want %q", cfg.InstanceID, "node-1")
	}
	if cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - DatabaseURL = %q, unexpected", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("config:config_test - HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 10s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}

	platforms := cfg.Platforms()
	want := []string{"irc", "xmpp", "slack"}
	if len(platforms) != len(want) {
		t.Fatalf("config:config_test - Platforms() = %v, want %v", platforms, want)
	}
	for i, p := range want {
		if platforms[i] != p {
			t.Errorf("config:config_test - Platforms()[%d] = %q, want %q", i, platforms[i], p)
		}
	}
}

func TestConfig_ValidateForServe(t *testing.T) {
	cfg := &Config{
		ListenerIntervalTime:  2 * time.Second,
		ListenerIntervalCount: 5,
		HealthCheckTimeout:    5 * time.Second,
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}

	cfg.ListenerIntervalCount = 0
	if err := cfg.ValidateForServe(); err == nil {
		t.Error("config:config_test - expected error for zero ListenerIntervalCount")
	}
}

func TestConfig_ValidateForDB(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error for empty DatabaseURL")
	}
	cfg.DatabaseURL = "postgres://x"
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
}
