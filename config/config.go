package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	OcelBridge OcelBridgeConfig `yaml:"ocelbridge"`
}

// OcelBridgeConfig is the project configuration.
type OcelBridgeConfig struct {
	Input     InputConfig     `yaml:"input"`
	Flatten   FlattenConfig   `yaml:"flatten"`
	Platform  PlatformConfig  `yaml:"platform"`
	Provision ProvisionConfig `yaml:"provision"`
	Progress  ProgressConfig  `yaml:"progress"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InputConfig locates the OCEL document.
type InputConfig struct {
	Path string `yaml:"path"` // file path or "-" for stdin
}

// FlattenConfig controls table derivation.
type FlattenConfig struct {
	LeadObjectType string `yaml:"lead_object_type"`
}

// PlatformConfig addresses the remote platform. Headers carry the
// pre-authenticated session (cookie, CSRF token or bearer token).
type PlatformConfig struct {
	BaseURL          string            `yaml:"base_url"`
	Environment      string            `yaml:"environment"`
	DataConnectionID string            `yaml:"data_connection_id"`
	Timeout          time.Duration     `yaml:"timeout"`
	PageSize         int               `yaml:"page_size"`
	Headers          map[string]string `yaml:"headers"`
}

// ProvisionConfig tunes a provisioning run.
type ProvisionConfig struct {
	Concurrency int    `yaml:"concurrency"`
	Color       string `yaml:"color"`
	Category    string `yaml:"category"`
}

// ProgressConfig selects where progress messages go besides the log.
type ProgressConfig struct {
	Mode          string              `yaml:"mode"` // console|file|redis
	File          FileOutputConfig    `yaml:"file"`
	Redis         RedisProgressConfig `yaml:"redis"`
	BatchSize     int                 `yaml:"batch_size"`
	FlushInterval time.Duration       `yaml:"flush_interval"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// RedisProgressConfig controls the Redis progress list.
type RedisProgressConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	MaxLen   int64         `yaml:"max_len"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads a YAML config file, expanding ${VAR} references from the
// environment first.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses YAML config data.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Config{OcelBridge: OcelBridgeConfig{Logging: LoggingConfig{Enabled: true, Console: true}}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values.
func ApplyDefaults(cfg *Config) {
	c := &cfg.OcelBridge
	if c.Input.Path == "" {
		c.Input.Path = "-"
	}
	if c.Platform.Environment == "" {
		c.Platform.Environment = "develop"
	}
	if c.Platform.Timeout <= 0 {
		c.Platform.Timeout = 30 * time.Second
	}
	if c.Platform.PageSize <= 0 {
		c.Platform.PageSize = 100
	}
	if c.Provision.Concurrency <= 0 {
		c.Provision.Concurrency = 8
	}
	if c.Provision.Color == "" {
		c.Provision.Color = "#4608B3"
	}
	if c.Provision.Category == "" {
		c.Provision.Category = "curriculum"
	}
	if c.Progress.Mode == "" {
		c.Progress.Mode = "console"
	}
	if c.Progress.File.Path == "" {
		c.Progress.File.Path = "output/progress.jsonl"
	}
	if c.Progress.Redis.Addr == "" {
		c.Progress.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Progress.Redis.Key == "" {
		c.Progress.Redis.Key = "ocelbridge:progress:{run_id}"
	}
	if c.Progress.BatchSize <= 0 {
		c.Progress.BatchSize = 100
	}
	if c.Progress.FlushInterval <= 0 {
		c.Progress.FlushInterval = time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks settings needed for provisioning.
func (c *OcelBridgeConfig) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	switch c.Progress.Mode {
	case "console", "file", "redis":
	default:
		return fmt.Errorf("unknown progress mode: %s", c.Progress.Mode)
	}
	return nil
}
