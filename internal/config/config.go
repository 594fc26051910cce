// Package config loads, validates, and hot-reloads the system's YAML
// configuration (spec §6), with environment variable overrides and an
// atomic validated swap on reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// Environment is the deployment tier.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the full set of recognized keys from spec §6.
type Config struct {
	Environment                     Environment `yaml:"environment"`
	HeartbeatIntervalMs             int         `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs              int         `yaml:"heartbeat_timeout_ms"`
	MaxRestarts                     int         `yaml:"max_restarts"`
	RestartWindowSeconds            int         `yaml:"restart_window_seconds"`
	EmergencyShutdownTimeoutSeconds int         `yaml:"emergency_shutdown_timeout_seconds"`
	GracefulShutdownTimeoutSeconds  int         `yaml:"graceful_shutdown_timeout_seconds"`
	MetricsRetentionHours           int         `yaml:"metrics_retention_hours"`
	PrometheusEnabled               bool        `yaml:"prometheus_enabled"`
	PrometheusPort                  int         `yaml:"prometheus_port"`
	GlobalRateLimitRPS              float64     `yaml:"global_rate_limit_rps"`
	GlobalRateLimitBurst            int         `yaml:"global_rate_limit_burst"`
	AutoRecoveryEnabled             bool        `yaml:"auto_recovery_enabled"`
	CircuitBreakerEnabled           bool        `yaml:"circuit_breaker_enabled"`
}

// Default returns the illustrative defaults used when a field is
// absent from the file and has no environment override.
func Default() Config {
	return Config{
		Environment:                     Development,
		HeartbeatIntervalMs:             500,
		HeartbeatTimeoutMs:              5000,
		MaxRestarts:                     3,
		RestartWindowSeconds:            30,
		EmergencyShutdownTimeoutSeconds: 10,
		GracefulShutdownTimeoutSeconds:  30,
		MetricsRetentionHours:           24,
		PrometheusEnabled:               true,
		PrometheusPort:                  9090,
		GlobalRateLimitRPS:              100,
		GlobalRateLimitBurst:            50,
		AutoRecoveryEnabled:             true,
		CircuitBreakerEnabled:           true,
	}
}

// Validate checks the invariants named in spec §6, returning an error
// naming the offending field and reason on the first violation found.
func Validate(c Config) error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", fmt.Sprintf("environment: must be one of development/staging/production, got %q", c.Environment))
	}
	if c.HeartbeatIntervalMs < 100 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "heartbeat_interval_ms: must be >= 100")
	}
	if c.HeartbeatTimeoutMs <= c.HeartbeatIntervalMs {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "heartbeat_timeout_ms: must be > heartbeat_interval_ms")
	}
	if c.MaxRestarts < 1 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "max_restarts: must be >= 1")
	}
	if c.RestartWindowSeconds < 1 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "restart_window_seconds: must be >= 1")
	}
	if c.EmergencyShutdownTimeoutSeconds < 1 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "emergency_shutdown_timeout_seconds: must be >= 1")
	}
	if c.GracefulShutdownTimeoutSeconds < 1 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "graceful_shutdown_timeout_seconds: must be >= 1")
	}
	if c.MetricsRetentionHours < 1 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "metrics_retention_hours: must be >= 1")
	}
	if c.PrometheusPort < 1 || c.PrometheusPort > 65535 {
		return olympuserr.New(olympuserr.InvalidCommand, "config.Validate", "prometheus_port: must be in 1..65535")
	}
	return nil
}

// envOverrides reads OLYMPUS_* environment variables and applies them
// over c, matching spec §6's "YAML file and/or environment variables."
func envOverrides(c Config) Config {
	if v, ok := os.LookupEnv("OLYMPUS_ENVIRONMENT"); ok {
		c.Environment = Environment(v)
	}
	if v, ok := os.LookupEnv("OLYMPUS_HEARTBEAT_INTERVAL_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.HeartbeatIntervalMs = n
		}
	}
	if v, ok := os.LookupEnv("OLYMPUS_HEARTBEAT_TIMEOUT_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.HeartbeatTimeoutMs = n
		}
	}
	if v, ok := os.LookupEnv("OLYMPUS_MAX_RESTARTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRestarts = n
		}
	}
	if v, ok := os.LookupEnv("OLYMPUS_PROMETHEUS_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.PrometheusEnabled = b
		}
	}
	if v, ok := os.LookupEnv("OLYMPUS_PROMETHEUS_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.PrometheusPort = n
		}
	}
	if v, ok := os.LookupEnv("OLYMPUS_AUTO_RECOVERY_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoRecoveryEnabled = b
		}
	}
	if v, ok := os.LookupEnv("OLYMPUS_CIRCUIT_BREAKER_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.CircuitBreakerEnabled = b
		}
	}
	return c
}

// Load reads path, applies environment overrides, and validates the
// result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, olympuserr.Wrap(olympuserr.InvalidCommand, "config.Load", "reading config file", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, olympuserr.Wrap(olympuserr.InvalidCommand, "config.Load", "parsing yaml", err)
	}
	c = envOverrides(c)
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ChangeHandler is notified with the newly active config after a
// successful hot-reload swap.
type ChangeHandler func(Config)

// Manager holds the currently active, validated Config and applies
// hot-reloaded updates atomically: a reload that fails validation
// never replaces the active config.
type Manager struct {
	mu       sync.RWMutex
	path     string
	current  Config
	handlers []ChangeHandler
}

// NewManager loads path once and returns a Manager seeded with the
// result.
func NewManager(path string) (*Manager, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, current: c}, nil
}

// Current returns the active configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a handler invoked after every successful reload.
func (m *Manager) OnChange(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Reload re-reads the file and swaps it in only if it parses and
// validates; otherwise the previously active Config is retained and
// the validation error is returned.
func (m *Manager) Reload() error {
	next, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.current = next
	handlers := append([]ChangeHandler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(next)
	}
	return nil
}
