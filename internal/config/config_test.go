package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setRequired(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	t.Setenv("SITE_BASE_URL", "https://lms.example.com")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if !cfg.Router.Enabled || !cfg.Router.CacheEnabled || !cfg.Router.InversionEnabled {
		t.Errorf("Expected router switches on by default, got %+v", cfg.Router)
	}
	if cfg.Router.CacheBackend != CacheBackendMemory {
		t.Errorf("Expected memory cache backend, got %s", cfg.Router.CacheBackend)
	}
	if cfg.Site.DefaultURL != cfg.Site.BaseURL {
		t.Errorf("Expected default url to fall back to base url, got %s", cfg.Site.DefaultURL)
	}
}

func TestLoad_MissingMySQLDSN(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("SITE_BASE_URL", "https://lms.example.com")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when MYSQL_DSN is missing")
	}
}

func TestLoad_MissingBaseURL(t *testing.T) {
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/test")
	t.Setenv("SITE_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when SITE_BASE_URL is missing")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "5")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CACHE_ENABLED", "0")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("ROUTER_STRICT_PLACEHOLDERS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Redis.Addr != "redis.example.com:6379" {
		t.Errorf("Expected custom Redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 5 {
		t.Errorf("Expected Redis DB 5, got %d", cfg.Redis.DB)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Expected HTTPAddr :9090, got %s", cfg.HTTPAddr)
	}
	if cfg.Router.CacheEnabled {
		t.Error("Expected caching disabled")
	}
	if cfg.Router.CacheBackend != CacheBackendRedis {
		t.Errorf("Expected redis backend, got %s", cfg.Router.CacheBackend)
	}
	if !cfg.Router.StrictPlaceholders {
		t.Error("Expected strict placeholders")
	}
}

func TestLoad_BadCacheBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("CACHE_BACKEND", "memcached")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unsupported cache backend")
	}
}

func TestLoadFromINI(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("SITE_BASE_URL", "")
	t.Setenv("CACHE_ENABLED", "")
	t.Setenv("HTTP_ADDR", ":7070")

	path := filepath.Join(t.TempDir(), "niceurl.ini")
	content := `[mysql]
dsn = ini:dsn@tcp(db:3306)/lms

[site]
base_url = https://ini.example.com
debug = true

[router]
caching = false
cache_size = 42

[http]
addr = :6060
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}

	cfg, err := LoadFromINI(path)
	if err != nil {
		t.Fatalf("LoadFromINI() failed: %v", err)
	}

	if cfg.MySQL.DSN != "ini:dsn@tcp(db:3306)/lms" {
		t.Errorf("Expected DSN from INI, got %s", cfg.MySQL.DSN)
	}
	if !cfg.Site.Debug {
		t.Error("Expected debug from INI")
	}
	if cfg.Router.CacheEnabled {
		t.Error("Expected caching disabled from INI")
	}
	if cfg.Router.CacheSize != 42 {
		t.Errorf("Expected cache size 42, got %d", cfg.Router.CacheSize)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("Expected env to override INI, got %s", cfg.HTTPAddr)
	}
}
