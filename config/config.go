// Package config provides unified configuration loading for memcore:
// defaults, YAML file, then environment variable overrides, in that
// priority order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete memcore configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Decay      DecayConfig      `yaml:"decay"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Reflection ReflectionConfig `yaml:"reflection"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// StorageConfig selects the persistent chunk store.
type StorageConfig struct {
	// Driver is one of sqlite, postgres, mysql.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures the reflection task queue.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DecayConfig configures the decay scheduler.
type DecayConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// ReflectionConfig configures the reflection engine.
type ReflectionConfig struct {
	DefaultDepth string        `yaml:"default_depth"`
	Timeout      time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "memcore.db",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "memcore:",
		},
		Decay: DecayConfig{
			Interval: time.Hour,
			Timeout:  time.Minute,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit: 10,
		},
		Reflection: ReflectionConfig{
			DefaultDepth: "medium",
			Timeout:      time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and
// environment variables, in that priority order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from MEMCORE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMCORE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("MEMCORE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("MEMCORE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MEMCORE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MEMCORE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MEMCORE_DECAY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Decay.Interval = d
		}
	}
	if v := os.Getenv("MEMCORE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("MEMCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Log.Level)
	}

	switch c.Reflection.DefaultDepth {
	case "shallow", "medium", "deep":
	default:
		return fmt.Errorf("unsupported reflection depth %q", c.Reflection.DefaultDepth)
	}

	if c.Decay.Interval <= 0 {
		return fmt.Errorf("decay interval must be positive")
	}
	return nil
}
