package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quartz.yaml")
	data := `
server:
  listen_addr: ":9090"
  log_level: debug
cache:
  capacity: 128
store:
  dsn: postgres://u:p@db:5432/kv
  pool_size: 8
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr not applied: %s", cfg.Server.ListenAddr)
	}
	if cfg.Cache.Capacity != 128 {
		t.Errorf("capacity not applied: %d", cfg.Cache.Capacity)
	}
	if cfg.Store.PoolSize != 8 {
		t.Errorf("pool_size not applied: %d", cfg.Store.PoolSize)
	}
	// Unset fields keep their defaults.
	if cfg.Server.LogFormat != "text" {
		t.Errorf("log_format default lost: %s", cfg.Server.LogFormat)
	}
}

func TestLoadFromFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("cache: ["), 0644)

	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("expected parse error for malformed yaml")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QUARTZ_LISTEN_ADDR", ":7000")
	t.Setenv("QUARTZ_CACHE_CAPACITY", "77")
	t.Setenv("QUARTZ_STORE_POOL_SIZE", "not-a-number")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Server.ListenAddr != ":7000" {
		t.Errorf("env listen_addr not applied: %s", cfg.Server.ListenAddr)
	}
	if cfg.Cache.Capacity != 77 {
		t.Errorf("env capacity not applied: %d", cfg.Cache.Capacity)
	}
	if cfg.Store.PoolSize != DefaultConfig().Store.PoolSize {
		t.Errorf("unparseable env override must be ignored, got %d", cfg.Store.PoolSize)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Capacity = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for zero cache capacity")
	}

	cfg = DefaultConfig()
	cfg.Store.PoolSize = -1
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for negative pool size")
	}

	cfg = DefaultConfig()
	cfg.Store.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for empty dsn")
	}
}
