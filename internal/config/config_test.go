package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PoolCapacity != 16 {
		t.Fatalf("default pool capacity: %d", cfg.PoolCapacity)
	}
	if cfg.WaitTimeout() != time.Second {
		t.Fatalf("default wait timeout: %v", cfg.WaitTimeout())
	}
	if cfg.ShmDir == "" {
		t.Fatalf("default shm dir empty")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("pool_capacity: 8\nwait_timeout_ms: 250\nlog_level: debug\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PoolCapacity != 8 {
		t.Fatalf("pool capacity not read from file: %d", cfg.PoolCapacity)
	}
	if cfg.WaitTimeoutMs != 250 {
		t.Fatalf("wait timeout not read from file: %d", cfg.WaitTimeoutMs)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level not read from file: %q", cfg.LogLevel)
	}
	// Untouched fields keep their defaults.
	if cfg.StreamBuffer != 16 {
		t.Fatalf("stream buffer default lost: %d", cfg.StreamBuffer)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pool_capacity: 8\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("IOX2_POOL_CAPACITY", "32")
	t.Setenv("IOX2_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PoolCapacity != 32 {
		t.Fatalf("env override lost: %d", cfg.PoolCapacity)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("env override lost: %q", cfg.LogFormat)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("IOX2_WAIT_TIMEOUT_MS", "0")
	if _, err := Load(""); err == nil {
		t.Fatalf("zero wait timeout accepted")
	}
}

func TestMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
