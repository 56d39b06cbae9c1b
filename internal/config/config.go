// Package config loads runtime settings for nodes and the command line
// tooling: a YAML file when one is given (JSON parses as YAML too), overlaid
// by IOX2_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable a node honors. Zero values are replaced by the
// defaults below.
type Config struct {
	// ShmDir is the directory holding channel segment files for the IPC
	// service type.
	ShmDir string `yaml:"shm_dir" env:"IOX2_SHM_DIR"`

	// PoolCapacity bounds the samples in flight per channel this process
	// creates.
	PoolCapacity int `yaml:"pool_capacity" env:"IOX2_POOL_CAPACITY"`

	// WaitTimeoutMs is the wait loop's liveness interval: how long a blocked
	// receive stream sleeps before re-checking for cancellation.
	WaitTimeoutMs int `yaml:"wait_timeout_ms" env:"IOX2_WAIT_TIMEOUT_MS"`

	// StreamBuffer is the capacity of a receive stream's delivery channel.
	StreamBuffer int `yaml:"stream_buffer" env:"IOX2_STREAM_BUFFER"`

	LogLevel  string `yaml:"log_level" env:"IOX2_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"IOX2_LOG_FORMAT"`
}

// Default returns the configuration a node runs with when nothing is set.
func Default() *Config {
	return &Config{
		ShmDir:        DefaultShmDir(),
		PoolCapacity:  16,
		WaitTimeoutMs: 1000,
		StreamBuffer:  16,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), and IOX2_* environment variables, in that order of
// precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings a node cannot run with.
func (c *Config) Validate() error {
	if c.PoolCapacity <= 0 {
		return fmt.Errorf("pool_capacity must be positive, got %d", c.PoolCapacity)
	}
	if c.WaitTimeoutMs <= 0 {
		return fmt.Errorf("wait_timeout_ms must be positive, got %d", c.WaitTimeoutMs)
	}
	if c.StreamBuffer <= 0 {
		return fmt.Errorf("stream_buffer must be positive, got %d", c.StreamBuffer)
	}
	return nil
}

// WaitTimeout returns the wait loop liveness interval as a duration.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMs) * time.Millisecond
}
