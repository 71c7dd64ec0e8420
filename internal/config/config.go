// Package config loads and validates server configuration: a
// yaml.v3-tagged struct, environment overrides applied after unmarshal
// (env wins, since a deploy-time env var should be able to override a
// checked-in config file), then validation.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in §6.
type Config struct {
	TCPPort          int    `yaml:"tcp_port"`
	PipeName         string `yaml:"pipe_name"`
	BatchSize        int    `yaml:"batch_size"`
	BatchTimeoutMs   int    `yaml:"batch_timeout_ms"`
	MaxRefreshFPS    int    `yaml:"max_refresh_fps"`
	TCPBufferSize    int    `yaml:"tcp_buffer_size"`
	EnableMetrics    bool   `yaml:"enable_metrics"`
	LogDirectory     string `yaml:"log_directory"`
	MetricsDirectory string `yaml:"metrics_directory"`
	AuditDBPath      string `yaml:"audit_db_path"`
	DashboardPort    int    `yaml:"dashboard_port"`
}

// Default returns the documented defaults (§6): batch_size=1000,
// batch_timeout_ms=100.
func Default() Config {
	return Config{
		TCPPort:          9999,
		PipeName:         "/tmp/tradingengine.sock",
		BatchSize:        1000,
		BatchTimeoutMs:   100,
		MaxRefreshFPS:    60,
		TCPBufferSize:    8 * 1024,
		EnableMetrics:    true,
		LogDirectory:     "logs",
		MetricsDirectory: "metrics",
		AuditDBPath:      "audit.db",
		DashboardPort:    9998,
	}
}

// Load reads path, falling back to Default for any field yaml.Unmarshal
// leaves at its zero value would be wrong to trust blindly — so Load
// starts from Default and unmarshals on top of it, then applies
// environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv applies TRADINGENGINE_* environment variables over
// whatever the yaml file set.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("TRADINGENGINE_TCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TCPPort = n
		}
	}
	if v := os.Getenv("TRADINGENGINE_PIPE_NAME"); v != "" {
		cfg.PipeName = v
	}
	if v := os.Getenv("TRADINGENGINE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("TRADINGENGINE_BATCH_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchTimeoutMs = n
		}
	}
	if v := os.Getenv("TRADINGENGINE_LOG_DIRECTORY"); v != "" {
		cfg.LogDirectory = v
	}
}

// Validate checks every bound named in §6 (tcp_port 1..65535, batch_size
// 1..10000, batch_timeout_ms 1..10000, max_refresh_fps 1..120) plus the
// obvious positivity constraints on the remaining fields.
func (c Config) Validate() error {
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		return fmt.Errorf("tcp_port out of range: %d", c.TCPPort)
	}
	if c.PipeName == "" {
		return fmt.Errorf("pipe_name must not be empty")
	}
	if c.BatchSize < 1 || c.BatchSize > 10000 {
		return fmt.Errorf("batch_size out of range [1,10000]: %d", c.BatchSize)
	}
	if c.BatchTimeoutMs < 1 || c.BatchTimeoutMs > 10000 {
		return fmt.Errorf("batch_timeout_ms out of range [1,10000]: %d", c.BatchTimeoutMs)
	}
	if c.MaxRefreshFPS < 1 || c.MaxRefreshFPS > 120 {
		return fmt.Errorf("max_refresh_fps out of range [1,120]: %d", c.MaxRefreshFPS)
	}
	if c.TCPBufferSize <= 0 {
		return fmt.Errorf("tcp_buffer_size must be positive: %d", c.TCPBufferSize)
	}
	if c.DashboardPort <= 0 || c.DashboardPort > 65535 {
		return fmt.Errorf("dashboard_port out of range: %d", c.DashboardPort)
	}
	return nil
}
