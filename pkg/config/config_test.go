package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.HTTPTimeout.Duration != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.GitHub.Owner != "astral-sh" || cfg.Cache.Backend != CacheFile {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty", cfg.Path)
	}
	if cfg.RetryAttempts != 3 || cfg.RetryDelay.Duration != time.Second {
		t.Errorf("retry = %d %v", cfg.RetryAttempts, cfg.RetryDelay)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
store_dir = "/opt/lilyenv"
platform = "aarch64-apple-darwin"
download_timeout = "2m"
catalog_pages = 3
retry_attempts = 5
retry_delay = "250ms"

[github]
owner = "me"
token_env = "MY_TOKEN"

[cache]
backend = "redis"
redis_url = "redis://localhost:6379/0"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}

	if cfg.StoreDir != "/opt/lilyenv" || cfg.Platform != "aarch64-apple-darwin" {
		t.Errorf("paths = %q %q", cfg.StoreDir, cfg.Platform)
	}
	if cfg.DownloadTimeout.Duration != 2*time.Minute {
		t.Errorf("DownloadTimeout = %v", cfg.DownloadTimeout)
	}
	if cfg.HTTPTimeout.Duration != 30*time.Second {
		t.Errorf("HTTPTimeout should keep its default, got %v", cfg.HTTPTimeout)
	}
	if cfg.GitHub.Owner != "me" || cfg.GitHub.Repo != "python-build-standalone" {
		t.Errorf("github = %+v", cfg.GitHub)
	}
	if cfg.CatalogPages != 3 || cfg.Cache.Backend != CacheRedis {
		t.Errorf("pages/backend = %d %q", cfg.CatalogPages, cfg.Cache.Backend)
	}
	if cfg.RetryAttempts != 5 || cfg.RetryDelay.Duration != 250*time.Millisecond {
		t.Errorf("retry = %d %v", cfg.RetryAttempts, cfg.RetryDelay)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q", cfg.Path)
	}

	t.Setenv("MY_TOKEN", "secret")
	if cfg.Token() != "secret" {
		t.Errorf("Token() = %q", cfg.Token())
	}
}

func TestLoadFileInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `store_dir = `},
		{"unknown key", `colour = "blue"`},
		{"bad duration", `http_timeout = "soon"`},
		{"zero timeout", `lock_timeout = "0s"`},
		{"too many pages", `catalog_pages = 50`},
		{"no retry attempts", `retry_attempts = 0`},
		{"negative retry delay", `retry_delay = "-1s"`},
		{"bad backend", "[cache]\nbackend = \"memcached\""},
		{"redis without url", "[cache]\nbackend = \"redis\""},
		{"bad api url", "[github]\napi_url = \"ftp://example.com\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("LoadFile() expected error")
			}
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Errorf("code = %v, want INVALID_INPUT", errors.GetCode(err))
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/lilyenv.toml")
	if p, _ := Path(); p != "/etc/lilyenv.toml" {
		t.Errorf("Path() = %q", p)
	}

	t.Setenv(EnvConfig, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if p, _ := Path(); p != "/xdg/lilyenv/config.toml" {
		t.Errorf("Path() = %q", p)
	}
}

func TestStoreRoot(t *testing.T) {
	t.Setenv("HOME", "/home/user")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv(EnvHome, "")

	cfg := Default()
	if got, _ := cfg.StoreRoot(); got != "/home/user/.local/share/lilyenv" {
		t.Errorf("default StoreRoot() = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/data")
	if got, _ := cfg.StoreRoot(); got != "/data/lilyenv" {
		t.Errorf("XDG StoreRoot() = %q", got)
	}

	cfg.StoreDir = "~/pythons"
	if got, _ := cfg.StoreRoot(); got != "/home/user/pythons" {
		t.Errorf("store_dir StoreRoot() = %q", got)
	}

	t.Setenv(EnvHome, "/srv/lilyenv")
	if got, _ := cfg.StoreRoot(); got != "/srv/lilyenv" {
		t.Errorf("LILYENV_HOME StoreRoot() = %q", got)
	}
}
